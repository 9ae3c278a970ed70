// process routes a deployment's imported files in to typed
// subdirectories under standardized names, then derives thumbnails and
// the overview mosaic.
package main

import (
	"context"
	"flag"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"strings"

	"github.com/GermanHydrogen/mritc-demo-pipeline/capture"
	"github.com/GermanHydrogen/mritc-demo-pipeline/common"
	"github.com/GermanHydrogen/mritc-demo-pipeline/config"
	"github.com/GermanHydrogen/mritc-demo-pipeline/operations/prune"
	"github.com/GermanHydrogen/mritc-demo-pipeline/operations/route"
	"github.com/GermanHydrogen/mritc-demo-pipeline/operations/thumbnail"
	_ "gocloud.dev/blob/fileblob"
)

func main() {

	config_path := flag.String("config", "pipeline.yml", "The path to a valid pipeline configuration file.")
	data_dir := flag.String("data-dir", "", "The deployment root directory holding imported files.")
	regen := flag.Bool("regen", false, "Remove derived artifacts (thumbnails, overview, manifest) before processing.")

	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*config_path)

	if err != nil {
		log.Fatal(err)
	}

	if *data_dir == "" {
		log.Fatal("Missing -data-dir")
	}

	bucket, err := common.OpenDeployment(ctx, *data_dir)

	if err != nil {
		log.Fatal(err)
	}

	defer bucket.Close()

	if *regen {

		p := &prune.Pruner{
			Bucket: bucket,
		}

		err := p.PruneDerived(ctx)

		if err != nil {
			log.Fatal(err)
		}
	}

	r := &route.Router{
		Bucket:    bucket,
		LocalRoot: *data_dir,
		Config:    cfg,
		Video: &capture.VideoExtractor{
			Binary:  cfg.FFProbe.Binary,
			Timeout: cfg.FFProbe.Timeout,
		},
	}

	routed, err := r.Route(ctx)

	if err != nil {
		log.Fatal(err)
	}

	stills := make([]string, 0)

	for _, rsp := range routed {

		if strings.HasPrefix(rsp.Destination, route.ImagesPrefix) {
			stills = append(stills, rsp.Destination)
		}
	}

	g := &thumbnail.Generator{
		Bucket: bucket,
		Size:   cfg.ThumbnailSize,
	}

	thumbs, err := g.GenerateThumbnails(ctx, stills)

	if err != nil {
		log.Fatal(err)
	}

	err = g.CreateOverview(ctx, thumbs)

	if err != nil {
		log.Fatal(err)
	}

	log.Printf("Routed %d files, generated %d thumbnails\n", len(routed), len(thumbs))
}
