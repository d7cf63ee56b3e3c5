// Command pagecraft is a minimal demonstration binary wiring the two
// example nodes (copynode, manifestnode) into a Pipeline. It exists to
// exercise the node contract end to end; the engine itself never depends
// on this package.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"pagecraft/examples/copynode"
	"pagecraft/examples/manifestnode"
	"pagecraft/internal/cachestore"
	"pagecraft/internal/model"
	"pagecraft/internal/pipeline"
	"pagecraft/internal/resolve"
)

func main() {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if os.Getenv("PAGECRAFT_DEBUG") != "" {
		log.SetLevel(logrus.DebugLevel)
	}

	buildDir := "build"
	projectRoot, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	store, err := cachestore.New(".pagecraft-cache", log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx := &pipeline.Context{
		BuildDir:    buildDir,
		ProjectRoot: projectRoot,
		Cache:       store,
		Log:         log,
	}

	p := pipeline.New(ctx)
	ctx.Resolver = resolve.New(buildDir, func(name string) ([]model.NodeOutput, bool) {
		return p.GetNodeOutputs(name)
	})

	assets := copynode.New("assets", "content/**/*.html", "out")
	manifest := manifestnode.New("manifest", "assets", "out", "build/manifest.json")

	if err := p.Register(assets); err != nil {
		fail("assets", err)
	}
	if err := p.Register(manifest); err != nil {
		fail("manifest", err)
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func fail(node string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", node, err)
	os.Exit(1)
}
