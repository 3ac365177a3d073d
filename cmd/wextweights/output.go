package main

import (
	"context"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/wext"
	"github.com/carbocation/wext/weights"
	"gonum.org/v1/gonum/mat"
)

func writeWeights(ctx context.Context, client *storage.Client, p string, P *mat.Dense) error {
	w, err := wext.MaybeCreateInGoogleStorage(ctx, p, client)
	if err != nil {
		return err
	}

	if err := weights.WriteNPY(w, P); err != nil {
		w.Close()
		return err
	}

	if err := w.Close(); err != nil {
		return pfx.Err(err)
	}

	return nil
}
