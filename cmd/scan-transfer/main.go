// scan-transfer moves scan artifacts between this host and the worker
// cluster's transfer endpoint, using the same configuration as the
// file registry service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/noah-isme/filescan-registry/internal/service"
	"github.com/noah-isme/filescan-registry/pkg/config"
	"github.com/noah-isme/filescan-registry/pkg/logger"
	"github.com/noah-isme/filescan-registry/pkg/transfer"
)

const usage = `Usage:
  scan-transfer upload --scan ID FILE...
  scan-transfer download --scan ID --hash SHA256 [--out PATH]

Local files given to upload must be named by the sha256 of their content.
Connection settings come from TRANSFER_* environment variables or .env.
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	dialer, err := transfer.NewDialer(cfg.Transfer, logr)
	if err != nil {
		return err
	}
	svc := service.NewTransferService(dialer, cfg.Storage.SpoolDir, nil, logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "upload":
		return runUpload(ctx, svc, logr, args[1:])
	case "download":
		return runDownload(ctx, svc, logr, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runUpload(ctx context.Context, svc *service.TransferService, logr *zap.Logger, args []string) error {
	var scanID string
	flagSet := pflag.NewFlagSet("upload", pflag.ContinueOnError)
	flagSet.StringVar(&scanID, "scan", "", "scan identifier, used as the remote directory")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	files := flagSet.Args()
	if scanID == "" || len(files) == 0 {
		return fmt.Errorf("upload needs --scan and at least one file")
	}
	if err := svc.UploadScan(ctx, scanID, files); err != nil {
		return err
	}
	logr.Info("upload complete", zap.String("scan_id", scanID), zap.Int("files", len(files)))
	return nil
}

func runDownload(ctx context.Context, svc *service.TransferService, logr *zap.Logger, args []string) error {
	var scanID, hash, out string
	flagSet := pflag.NewFlagSet("download", pflag.ContinueOnError)
	flagSet.StringVar(&scanID, "scan", "", "scan identifier")
	flagSet.StringVar(&hash, "hash", "", "sha256 of the object to fetch")
	flagSet.StringVarP(&out, "out", "o", "", "destination file (default: stdout)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if scanID == "" || hash == "" {
		return fmt.Errorf("download needs --scan and --hash")
	}

	data, err := svc.DownloadFileData(ctx, scanID, hash)
	if err != nil {
		return err
	}
	defer data.Close() //nolint:errcheck

	var n int64
	if out == "" {
		n, err = io.Copy(os.Stdout, data)
		if err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	} else {
		file, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		if n, err = copyAndClose(file, data); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
	}
	logr.Info("download complete", zap.String("scan_id", scanID), zap.String("sha256", hash), zap.Int64("bytes", n))
	return nil
}

// copyAndClose drains r into dst and closes dst. A failed close is reported
// since buffered data may not have reached the disk.
func copyAndClose(dst io.WriteCloser, r io.Reader) (int64, error) {
	n, err := io.Copy(dst, r)
	if err != nil {
		_ = dst.Close()
		return n, err
	}
	return n, dst.Close()
}
