// compose correlates a routed deployment against its telemetry table
// and writes the output mapping consumed by the packaging step.
package main

import (
	"context"
	"flag"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"

	"github.com/GermanHydrogen/mritc-demo-pipeline/common"
	"github.com/GermanHydrogen/mritc-demo-pipeline/config"
	"github.com/GermanHydrogen/mritc-demo-pipeline/operations/compose"
	"github.com/GermanHydrogen/mritc-demo-pipeline/telemetry"
	_ "gocloud.dev/blob/fileblob"
)

func main() {

	config_path := flag.String("config", "pipeline.yml", "The path to a valid pipeline configuration file.")
	data_dir := flag.String("data-dir", "", "The deployment root directory holding routed files.")

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

	c := &compose.Composer{
		Bucket: bucket,
		Config: cfg,
	}

	records, err := c.Compose(ctx)

	if err != nil {
		log.Fatal(err)
	}

	err = compose.WriteManifest(ctx, bucket, cfg, records)

	if err != nil {
		log.Fatal(err)
	}

	matched := 0

	for _, rec := range records {

		if rec.MatchQuality != telemetry.None.String() {
			matched += 1
		}
	}

	log.Printf("Composed %d records (%d with telemetry matches) to %s\n", len(records), matched, compose.ManifestKey)
}
