package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/nicolagi/gitcore/internal/config"
	"github.com/nicolagi/gitcore/internal/fsck"
	"github.com/nicolagi/gitcore/internal/objgraph"
	"github.com/nicolagi/gitcore/internal/objid"
	"github.com/nicolagi/gitcore/internal/objstore"
	"github.com/nicolagi/gitcore/internal/refstore"
)

var globalContext struct {
	dir      string
	logLevel string
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&globalContext.dir, "dir", ".", "`directory` holding objects/ and refs/")
	var levels []string
	for _, l := range log.AllLevels {
		levels = append(levels, l.String())
	}
	fs.StringVar(&globalContext.logLevel, "verbosity", "warning", "sets the log `level`, among "+strings.Join(levels, ", "))
	return fs
}

// storeOptions derives object store options from the repository's
// config file: [s3] bucket/region adds a remote mirror backend, and
// core.lenient disables the post-read digest check.
func storeOptions(dir string) []objstore.Option {
	cfg := config.Open(filepath.Join(dir, "config"))
	var opts []objstore.Option
	if bucket, err := cfg.Get("s3", "", "bucket"); err == nil {
		region, err := cfg.Get("s3", "", "region")
		if err != nil {
			log.Fatalf("Config names an s3 bucket but no region: %v", err)
		}
		opts = append(opts, objstore.WithRemote(objstore.NewS3Backend(bucket, region)))
	}
	if lenient, err := cfg.GetBool("core", "", "lenient"); err == nil && lenient {
		opts = append(opts, objstore.WithStrictness(objstore.Lenient))
	}
	return opts
}

func main() {
	fs := newFlagSet("gitcore-fsck")
	var extraRootsFlag string
	fs.StringVar(&extraRootsFlag, "extra", "", "comma-separated hex ids to add as reachability roots")
	_ = fs.Parse(os.Args[1:])

	log.SetOutput(os.Stderr)
	ll, err := log.ParseLevel(globalContext.logLevel)
	if err != nil {
		log.Fatalf("Could not parse log level %q: %v", globalContext.logLevel, err)
	}
	log.SetLevel(ll)

	store, err := objstore.Open(filepath.Join(globalContext.dir, "objects"), storeOptions(globalContext.dir)...)
	if err != nil {
		log.Fatalf("Could not open object store: %v", err)
	}
	refs := refstore.New(globalContext.dir)
	grafts, err := objgraph.LoadGrafts(filepath.Join(globalContext.dir, "info", "grafts"))
	if err != nil {
		log.Fatalf("Could not load grafts: %v", err)
	}
	graph := objgraph.NewGraph(store, objgraph.WithGrafts(grafts))
	checker := fsck.New(graph, store, refs)

	var extraRoots []objid.ID
	if extraRootsFlag != "" {
		for _, hex := range strings.Split(extraRootsFlag, ",") {
			id, err := objid.HexToID(strings.TrimSpace(hex))
			if err != nil {
				log.Fatalf("Could not parse extra root %q: %v", hex, err)
			}
			extraRoots = append(extraRoots, id)
		}
	}

	findings, err := checker.Check(extraRoots)
	if err != nil {
		log.Fatalf("Could not check integrity: %v", err)
	}
	fsck.WriteReport(os.Stderr, findings)
	if !fsck.Clean(findings) {
		os.Exit(1)
	}
}
