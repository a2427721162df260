package sitehandler

import (
	"fmt"
	"io/fs"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/log"
)

type Options struct {
	Logger log.Logger

	// Static is the asset tree served for every path no application route claims
	// (css/, js/, fonts/, index.html).
	Static fs.FS
	// Fallback holds the 404 page used when Static has none.
	Fallback fs.FS

	// NotFoundFile is looked up in Static first, then Fallback. Default "404.html".
	NotFoundFile string
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.NotFoundFile == "" {
		o.NotFoundFile = "404.html"
	}
}

func (o *Options) validate() error {
	if o.Static == nil {
		return fmt.Errorf("%w: Static is nil", ErrInvalidOptions)
	}
	// Fallback is optional; not-found degrades to plain text without it.
	return nil
}
