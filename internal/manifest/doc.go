// Package manifest defines the release recipe and its on-disk format.
//
// A recipe is a single YAML document with four sections: build (toolchain
// image and compile command), runtime (minimal base image and the non-root
// identity the artifact runs under), slim (image minimization policy), and
// publish (registry target). Decoding is strict: unknown fields are
// rejected, so stray keys and misplaced secrets fail the load instead of
// being silently ignored. Registry credentials have no recipe surface at
// all; they reach the pipeline through the environment.
//
// Example usage:
//
//	rec, err := manifest.Load("slipway.yml")
//	if err != nil {
//	    return err
//	}
//
//	base, err := manifest.ParseImageRef(rec.Runtime.Base)
//	if err != nil {
//	    return err
//	}
package manifest
