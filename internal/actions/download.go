package actions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/five82/tables/internal/statuslog"
	"github.com/five82/tables/internal/tables"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Download saves the result workbook as result.xlsx in dir and returns the
// saved path. The file is written under a temporary name and only renamed
// once at least one byte arrived.
func (s *Service) Download(ctx context.Context, dir string) (string, error) {
	s.sink.Append("Preparing the file for download...", statuslog.Info)

	files, err := s.api.CheckFiles(ctx)
	if err != nil {
		s.store.UpdateFiles(nil, err)
		return "", s.fail("Download failed", err)
	}
	s.store.UpdateFiles(&files, nil)
	if !files.Result {
		s.sink.Append("Result file not found", statuslog.Error)
		return "", ErrResultMissing
	}

	dir, err = downloadDir(dir)
	if err != nil {
		return "", s.fail("Download failed", err)
	}

	s.sink.Append("Downloading the file...", statuslog.Info)
	payload, err := s.api.Download(ctx)
	if err != nil {
		return "", s.fail("Download failed", err)
	}
	defer payload.Close()

	target := filepath.Join(dir, tables.ResultFilename)
	written, err := writePartial(target, payload)
	if err != nil {
		return "", s.fail("Download failed", err)
	}
	if written == 0 {
		s.sink.Append("Received an empty file", statuslog.Error)
		return "", &tables.Error{Kind: tables.KindEmptyPayload, Endpoint: tables.EndpointDownload.Path, Message: "received an empty file"}
	}

	if mtype, err := mimetype.DetectFile(target); err != nil {
		s.logger.Warn("detect downloaded file type", "path", target, "error", err)
	} else if !mtype.Is(xlsxMIME) {
		s.sink.Append(fmt.Sprintf("Downloaded file does not look like an Excel workbook (detected %s)", mtype.String()), statuslog.Warning)
	}

	s.logger.Info("result downloaded", "path", target, "bytes", written)
	s.sink.Append(fmt.Sprintf("File downloaded successfully: %s", target), statuslog.Success)
	return target, nil
}

// writePartial streams r into target.part and renames it over target when
// anything was written. An empty or failed transfer leaves target untouched.
func writePartial(target string, r io.Reader) (int64, error) {
	partial := target + ".part"
	file, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", partial, err)
	}
	written, copyErr := io.Copy(file, r)
	closeErr := file.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(partial)
		return 0, fmt.Errorf("write %s: %w", partial, err)
	}
	if written == 0 {
		_ = os.Remove(partial)
		return 0, nil
	}
	if err := os.Rename(partial, target); err != nil {
		_ = os.Remove(partial)
		return 0, fmt.Errorf("save %s: %w", target, err)
	}
	return written, nil
}

func downloadDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "."
	}
	if strings.HasPrefix(dir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	return dir, nil
}
