// Package thumbnail derives fixed-box thumbnails for routed stills and
// composes them in to a single overview mosaic for visual QA.
package thumbnail

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"path"
	"sort"
	"strings"

	"github.com/GermanHydrogen/mritc-demo-pipeline/naming"
	"github.com/GermanHydrogen/mritc-demo-pipeline/operations/route"
	"github.com/aaronland/go-image-tools/util"
	"github.com/disintegration/imaging"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"gocloud.dev/blob"
)

// OverviewKey is where the mosaic is written, relative to the
// deployment root.
const OverviewKey = "overview.jpg"

// Generator produces thumbnails and the overview mosaic for one
// deployment.
type Generator struct {
	// The deployment bucket. Thumbnails are written under the
	// thumbnails/ prefix, the mosaic at the root.
	Bucket *blob.Bucket
	// The bounding box (pixels) thumbnails are scaled to fit. The
	// longer edge of the source is scaled to Size; nothing is cropped.
	Size int
}

// GenerateThumbnails produces one thumbnail per still key. Failure to
// thumbnail an image is logged and does not remove that image from the
// batch. The returned keys are sorted.
func (g *Generator) GenerateThumbnails(ctx context.Context, stills []string) ([]string, error) {

	rsp_ch := make(chan string)
	done_ch := make(chan bool)
	err_ch := make(chan error)

	for _, key := range stills {

		go func(key string) {

			defer func() {
				done_ch <- true
			}()

			thumb_key, err := g.thumbnail(ctx, key)

			if err != nil {
				err_ch <- fmt.Errorf("Failed to thumbnail %s, %w", key, err)
				return
			}

			rsp_ch <- thumb_key

		}(key)
	}

	remaining := len(stills)
	thumbs := make([]string, 0, len(stills))

	for remaining > 0 {
		select {
		case <-done_ch:
			remaining -= 1
		case err := <-err_ch:
			slog.Error("Thumbnail generation failed, image stays in the batch", "error", err)
		case thumb_key := <-rsp_ch:
			thumbs = append(thumbs, thumb_key)
		}
	}

	sort.Strings(thumbs)
	return thumbs, nil
}

// thumbnail scales one still to fit the box and writes it under the
// thumbnails/ prefix with the thumbnail marker appended to its stem.
func (g *Generator) thumbnail(ctx context.Context, key string) (string, error) {

	fh, err := g.Bucket.NewReader(ctx, key, nil)

	if err != nil {
		return "", fmt.Errorf("Failed to create reader for %s, %w", key, err)
	}

	defer fh.Close()

	im, format, err := util.DecodeImageFromReader(fh)

	if err != nil {
		return "", fmt.Errorf("Failed to decode image from %s, %w", key, err)
	}

	thumb := imaging.Fit(im, g.Size, g.Size, imaging.Lanczos)

	base := path.Base(key)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	thumb_key := route.ThumbsPrefix + stem + naming.ThumbnailMarker + ext

	err = g.write(ctx, thumb_key, thumb, format)

	if err != nil {
		return "", err
	}

	return thumb_key, nil
}

// CreateOverview composes all thumbnails in to a single grid image at
// the deployment root: rows = ceil(sqrt(n)), columns = ceil(n/rows),
// thumbnails pasted centered in their cells in the given order. Zero
// thumbnails means no mosaic and no error.
func (g *Generator) CreateOverview(ctx context.Context, thumbs []string) error {

	n := len(thumbs)

	if n == 0 {
		return nil
	}

	rows := int(math.Ceil(math.Sqrt(float64(n))))
	cols := int(math.Ceil(float64(n) / float64(rows)))

	canvas := imaging.New(cols*g.Size, rows*g.Size, color.White)

	for i, thumb_key := range thumbs {

		fh, err := g.Bucket.NewReader(ctx, thumb_key, nil)

		if err != nil {
			return fmt.Errorf("Failed to create reader for %s, %w", thumb_key, err)
		}

		im, _, err := util.DecodeImageFromReader(fh)

		fh.Close()

		if err != nil {
			return fmt.Errorf("Failed to decode thumbnail %s, %w", thumb_key, err)
		}

		bounds := im.Bounds()

		row := i / cols
		col := i % cols

		x := col*g.Size + (g.Size-bounds.Dx())/2
		y := row*g.Size + (g.Size-bounds.Dy())/2

		canvas = imaging.Paste(canvas, im, image.Pt(x, y))
	}

	return g.write(ctx, OverviewKey, canvas, "jpeg")
}

// write encodes an image to the bucket. Writes to S3-backed buckets
// are made public so the QA mosaic can be linked directly; the hook is
// a no-op everywhere else.
func (g *Generator) write(ctx context.Context, key string, im image.Image, format string) error {

	before := func(asFunc func(interface{}) bool) error {

		s3_req := &s3manager.UploadInput{}
		ok := asFunc(&s3_req)

		if ok {
			s3_req.ACL = aws.String("public-read")
		}

		return nil
	}

	wr_opts := &blob.WriterOptions{
		BeforeWrite: before,
	}

	wr, err := g.Bucket.NewWriter(ctx, key, wr_opts)

	if err != nil {
		return fmt.Errorf("Failed to create writer for %s, %w", key, err)
	}

	err = util.EncodeImage(im, format, wr)

	if err != nil {
		wr.Close()
		return fmt.Errorf("Failed to encode image to %s, %w", key, err)
	}

	err = wr.Close()

	if err != nil {
		return fmt.Errorf("Failed to close writer for %s, %w", key, err)
	}

	return nil
}
