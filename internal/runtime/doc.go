// Package runtime manages containers and images backed by containerd.
//
// A [Runtime] connects to a containerd daemon and provides the image
// operations the pipeline needs: pulling registry references, importing
// OCI archives (tagged with a deterministic content hash and unpacked for
// the host platform), tagging, pushing, and destroying run-scoped images.
//
// Each [Container] wraps a running containerd task. Stage commands execute
// inside the container, files move in and out as tar streams, and the
// final filesystem state can be committed as a named store image and
// exported as an OCI archive with a rewritten config (entrypoint,
// execution identity, working directory). When a container is no longer
// needed it should be destroyed to release its snapshot and task.
//
// Example usage:
//
//	rt, err := runtime.New("/run/containerd/containerd.sock", "slipway")
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	if err := rt.Pull(ctx, "docker.io/library/debian:stable-slim", nil); err != nil {
//	    return err
//	}
//
//	ctr, err := rt.StartFromTag(ctx, "docker.io/library/debian:stable-slim", "assemble-1")
//	if err != nil {
//	    return err
//	}
//	defer ctr.Destroy(ctx)
//
//	result, err := ctr.Exec(ctx, "/bin/sh", "echo hello", nil, "")
//	if err != nil {
//	    return err
//	}
//
//	err = ctr.Export(ctx, runtime.ExportOptions{
//	    Entrypoint: []string{"/usr/local/bin/app"},
//	    User:       "app",
//	    Tag:        "slipway/run/1:assembled",
//	})
package runtime
