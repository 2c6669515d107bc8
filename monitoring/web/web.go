// Package web holds the status page served by the monitor.
package web

import (
	"embed"
	"io/fs"
	"os"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("netemu/monitoring")

// AssetDirEnv names a directory whose files replace the embedded page, so
// the page can be edited without rebuilding.
const AssetDirEnv = "NETEMU_MONITOR_ASSETS"

//go:embed dist
var dist embed.FS

// Embedded returns the page compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(dist, "dist")
	if err != nil {
		panic(err)
	}

	return sub
}

// Assets returns the files the monitor serves. A directory named by
// AssetDirEnv wins if it has an index.html.
func Assets() fs.FS {
	dir := os.Getenv(AssetDirEnv)
	if dir == "" {
		return Embedded()
	}

	assets := os.DirFS(dir)
	if _, err := fs.Stat(assets, "index.html"); err != nil {
		log.Warnf("%s=%s has no index.html, using the embedded page: %v",
			AssetDirEnv, dir, err)

		return Embedded()
	}

	log.Infof("serving monitor assets from %s", dir)

	return assets
}
