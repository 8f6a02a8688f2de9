package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"facecrop_backend/internal/app/di"
	"facecrop_backend/internal/feature/facedetection/domain/entity"
)

// detectOptions holds flags of the detect command.
type detectOptions struct {
	Inputs    []string
	OutputDir string
	Accuracy  float64
	MaxFaces  int
}

var detectOpts detectOptions

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect faces and write each crop as an image file",
	Example: `  facecrop detect -i group.jpg -o faces
  facecrop detect -i a.jpg -i https://example.com/b.png --accuracy 0.5 --max-faces 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		var o entity.OptionOverrides
		if cmd.Flags().Changed("accuracy") {
			o.Accuracy = &detectOpts.Accuracy
		}
		if cmd.Flags().Changed("max-faces") {
			o.MaxFaces = &detectOpts.MaxFaces
		}
		return runDetect(cmd.Context(), detectOpts, o)
	},
}

func init() {
	detectCmd.Flags().StringArrayVarP(&detectOpts.Inputs, "input", "i", nil, "Image path, file://, http(s):// or data: URL (repeatable)")
	detectCmd.Flags().StringVarP(&detectOpts.OutputDir, "output", "o", ".", "Directory for cropped faces")
	detectCmd.Flags().Float64Var(&detectOpts.Accuracy, "accuracy", entity.DefaultAccuracy, "Minimum pose score, in [0, 1)")
	detectCmd.Flags().IntVar(&detectOpts.MaxFaces, "max-faces", entity.DefaultMaxFaces, "Maximum number of faces per image")

	_ = detectCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(detectCmd)
}

// faceDetector is the part of the use case the command needs.
type faceDetector interface {
	DetectFaces(ctx context.Context, in entity.ImageInput, o entity.OptionOverrides) ([]entity.FaceResult, error)
}

func runDetect(ctx context.Context, opts detectOptions, o entity.OptionOverrides) error {
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		die("Failed to create output directory", err)
	}

	fd, err := di.NewFaceDetection(cfg, nil, true)
	if err != nil {
		die("Failed to configure face detection", err)
	}
	defer func() {
		if err := fd.Close(); err != nil {
			slog.Warn("failed to release pose models", "error", err)
		}
	}()

	bar := progressbar.NewOptions(len(opts.Inputs),
		progressbar.OptionSetDescription("Detecting faces"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
	defer func() { _ = bar.Finish() }()

	failed := processInputs(ctx, fd.Usecase, opts, o, os.Stdout, func() { _ = bar.Add(1) })
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(opts.Inputs))
	}
	return nil
}

// processInputs runs detection for every input, writes crops and prints one line per face.
// It keeps going after a failed input and returns the number of failures.
func processInputs(ctx context.Context, uc faceDetector, opts detectOptions, o entity.OptionOverrides, out io.Writer, step func()) int {
	failed := 0
	stems := make(map[string]bool, len(opts.Inputs))
	for _, input := range opts.Inputs {
		if ctx.Err() != nil {
			failed++
			step()
			continue
		}
		stem := uniqueStem(stems, baseName(input))

		faces, err := uc.DetectFaces(ctx, entity.ImageInput{Ref: input}, o)
		if err != nil {
			slog.Error("face detection failed", "input", input, "error", err)
			failed++
			step()
			continue
		}

		for i, f := range faces {
			path, err := writeFace(opts.OutputDir, stem, i+1, f.Image)
			if err != nil {
				slog.Error("failed to write face", "input", input, "rank", i+1, "error", err)
				failed++
				break
			}
			fmt.Fprintf(out, "%s\t%.4f\t%s\n", input, f.Score, path)
		}
		if len(faces) == 0 {
			fmt.Fprintf(out, "%s\tno faces\n", input)
		}
		step()
	}
	return failed
}

// uniqueStem reserves stem in used, appending _2, _3, ... when an earlier input already took it.
func uniqueStem(used map[string]bool, stem string) string {
	candidate := stem
	for n := 2; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d", stem, n)
	}
	used[candidate] = true
	return candidate
}

// writeFace decodes a data URL and writes it as <stem>_face_<rank>.<ext> in dir.
func writeFace(dir, stem string, rank int, dataURL string) (string, error) {
	ext, data, err := decodeDataURL(dataURL)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_face_%d.%s", stem, rank, ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// decodeDataURL returns the file extension and payload of a base64 image data URL.
func decodeDataURL(s string) (string, []byte, error) {
	header, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasPrefix(header, "data:image/") || !strings.HasSuffix(header, ";base64") {
		return "", nil, fmt.Errorf("not a base64 image data URL")
	}
	ext := strings.TrimSuffix(strings.TrimPrefix(header, "data:image/"), ";base64")
	if ext == "jpeg" {
		ext = "jpg"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode data URL: %w", err)
	}
	return ext, data, nil
}

// baseName derives a file name stem from a path or URL.
func baseName(input string) string {
	if strings.HasPrefix(input, "data:") {
		return "image"
	}
	if i := strings.IndexAny(input, "?#"); i >= 0 {
		input = input[:i]
	}
	base := filepath.Base(strings.TrimRight(input, "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == "/" {
		return "image"
	}
	return base
}
