// Package upload reads staged file selections and turns them into upload
// arguments once every read has finished.
package upload

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/homectlx/homectl/internal/args"
	"github.com/homectlx/homectl/internal/collect"
	"golang.org/x/sync/errgroup"
)

const defaultMIME = "application/octet-stream"

// ReadFunc loads the bytes of one staged file.
type ReadFunc func(ctx context.Context, path string) ([]byte, error)

// Coordinator resolves the file fields of a collection pass.
type Coordinator struct {
	read   ReadFunc
	logger *slog.Logger
}

// New creates a Coordinator. A nil read uses the local filesystem.
func New(read ReadFunc, logger *slog.Logger) *Coordinator {
	if read == nil {
		read = readLocal
	}
	return &Coordinator{
		read:   read,
		logger: logger.With("component", "upload"),
	}
}

func readLocal(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Resolve reads every file of every field concurrently and returns the
// upload arguments only after all reads completed. Names and payloads are
// index-aligned in selection order. A failed read fails the whole pass.
func (c *Coordinator) Resolve(ctx context.Context, fields []collect.FileField) (args.Map, error) {
	type slot struct {
		names   []string
		payload []string
	}
	slots := make([]slot, len(fields))
	for i, f := range fields {
		slots[i] = slot{names: make([]string, len(f.Files)), payload: make([]string, len(f.Files))}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range fields {
		for j, file := range f.Files {
			// Every goroutine owns distinct indexes; no locking needed.
			g.Go(func() error {
				data, err := c.read(gctx, file.Path)
				if err != nil {
					return fmt.Errorf("read %s for field %q: %w", file.Name, f.Name, err)
				}
				slots[i].names[j] = file.Name
				slots[i].payload[j] = DataURL(file.Name, data)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		c.logger.Error("upload read failed", "error", err)
		return nil, err
	}

	out := args.Map{}
	total := 0
	for i, f := range fields {
		if len(f.Files) == 0 {
			continue
		}
		// Two file inputs sharing a name merge in scan order.
		if prev, ok := out[f.Name]; ok && prev.Kind() == args.KindUpload {
			up := prev.Upload()
			out[f.Name] = args.UploadOf(append(up.Names, slots[i].names...), append(up.Bytes, slots[i].payload...))
		} else {
			out[f.Name] = args.UploadOf(slots[i].names, slots[i].payload)
		}
		total += len(f.Files)
	}
	c.logger.Debug("uploads resolved", "fields", len(out), "files", total)
	return out, nil
}

// DataURL encodes data the way a browser FileReader.readAsDataURL does,
// deriving the media type from the file extension.
func DataURL(name string, data []byte) string {
	mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt == "" {
		mt = defaultMIME
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(data)
}
