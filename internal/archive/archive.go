// Package archive packs a finished export tree into a single compressed,
// optionally encrypted tar object and stores it for versioning.
package archive

import (
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rowjay/mssql-admin-utility/internal/config"
	"github.com/rowjay/mssql-admin-utility/internal/cryptoutil"
	"github.com/rowjay/mssql-admin-utility/internal/storage"
	"github.com/rowjay/mssql-admin-utility/internal/util"
	"github.com/rowjay/mssql-admin-utility/internal/version"
)

type Packer struct {
	cfg   config.ArchiveConfig
	store storage.Storage
	log   zerolog.Logger
}

func New(cfg config.ArchiveConfig, store storage.Storage, log zerolog.Logger) *Packer {
	return &Packer{cfg: cfg, store: store, log: log}
}

type Result struct {
	Key      string
	Manifest storage.Manifest
}

// Pack streams sourceDir as a tar archive through compression and optional
// encryption into the store, then writes a manifest object beside it.
func (p *Packer) Pack(ctx context.Context, sourceDir, instance, scope string) (*Result, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("stat export tree: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("export tree %s is not a directory", sourceDir)
	}
	if p.cfg.Encryption && p.cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("archive encryption is enabled but encryption_key is empty")
	}

	fileCount, err := countFiles(sourceDir)
	if err != nil {
		return nil, err
	}

	when := time.Now()
	key := util.BuildArchiveKey(p.cfg.Prefix, instance, scope, when, extension(p.cfg.Compression, p.cfg.Encryption))

	pipeReader, pipeWriter := io.Pipe()
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer pipeReader.Close()
		return p.store.Put(egCtx, key, pipeReader, -1, map[string]string{"msau-archive": "true"})
	})

	eg.Go(func() error {
		writer := io.Writer(pipeWriter)
		closers := []io.Closer{pipeWriter}

		if p.cfg.Encryption {
			keyBytes, err := cryptoutil.ParseKey(p.cfg.EncryptionKey)
			if err != nil {
				_ = pipeWriter.CloseWithError(err)
				return err
			}
			encWriter, err := cryptoutil.EncryptWriter(writer, keyBytes)
			if err != nil {
				_ = pipeWriter.CloseWithError(err)
				return err
			}
			writer = encWriter
			closers = append(closers, encWriter)
		}

		compWriter, err := wrapWriter(p.cfg.Compression, writer)
		if err != nil {
			_ = pipeWriter.CloseWithError(err)
			return err
		}
		writer = compWriter
		closers = append(closers, compWriter)

		if err := writeTar(writer, sourceDir); err != nil {
			_ = pipeWriter.CloseWithError(err)
			return err
		}
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				_ = pipeWriter.CloseWithError(err)
				return err
			}
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	stat, err := p.store.Stat(ctx, key)
	if err != nil {
		return nil, err
	}
	manifest := storage.Manifest{
		ID:          fmt.Sprintf("%s-%d", util.SafeInstance(instance), when.UnixNano()),
		Key:         key,
		Instance:    instance,
		Scope:       scope,
		SourceDir:   sourceDir,
		Compression: p.cfg.Compression,
		Encryption:  p.cfg.Encryption,
		CreatedAt:   when.UTC(),
		SizeBytes:   stat.Size,
		FileCount:   fileCount,
		ToolVersion: version.Version,
	}
	if err := p.writeManifest(ctx, manifest); err != nil {
		p.log.Warn().Err(err).Msg("failed to write archive manifest")
	}
	return &Result{Key: key, Manifest: manifest}, nil
}

// List returns the stored archives of one instance, manifests excluded.
func (p *Packer) List(ctx context.Context, instance string) ([]storage.ObjectInfo, error) {
	objects, err := p.store.List(ctx, util.BuildPrefix(p.cfg.Prefix, instance))
	if err != nil {
		return nil, err
	}
	archives := objects[:0]
	for _, obj := range objects {
		if obj.IsManifest {
			continue
		}
		archives = append(archives, obj)
	}
	return archives, nil
}

func (p *Packer) writeManifest(ctx context.Context, manifest storage.Manifest) error {
	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	key := storage.ManifestKey(manifest.Key)
	return p.store.Put(ctx, key, strings.NewReader(string(payload)), int64(len(payload)), map[string]string{"msau-manifest": "true"})
}

// writeTar tars every regular file under root, paths relative to root.
func writeTar(w io.Writer, root string) error {
	tw := tar.NewWriter(w)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tw, file)
		return err
	})
	if err != nil {
		return err
	}
	return tw.Close()
}

func countFiles(root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	return count, err
}
