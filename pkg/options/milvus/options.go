// Package milvusopts provides options for Milvus client configuration.
package milvusopts

import (
	"fmt"
	"time"

	"github.com/kart-io/docrag/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*Options)(nil)

// Options contains Milvus client configuration.
type Options struct {
	// Address is the Milvus server address (host:port).
	Address string `json:"address" mapstructure:"address"`

	// Database is the database name to use.
	Database string `json:"database" mapstructure:"database"`

	Username string `json:"username" mapstructure:"username"`
	Password string `json:"-" mapstructure:"password"`

	// Timeout bounds connection setup and every store operation.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// NProbe is the number of IVF clusters probed per search.
	NProbe int `json:"nprobe" mapstructure:"nprobe"`

	// NList is the number of IVF clusters built by the index.
	NList int `json:"nlist" mapstructure:"nlist"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Address:  "localhost:19530",
		Database: "default",
		Timeout:  30 * time.Second,
		NProbe:   16,
		NList:    128,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "milvus."
	fs.StringVar(&o.Address, p+"address", o.Address, "Milvus server address (host:port).")
	fs.StringVar(&o.Database, p+"database", o.Database, "Milvus database name.")
	fs.StringVar(&o.Username, p+"username", o.Username, "Milvus username for authentication.")
	fs.StringVar(&o.Password, p+"password", o.Password, "Milvus password for authentication.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Connection and operation timeout.")
	fs.IntVar(&o.NProbe, p+"nprobe", o.NProbe, "IVF clusters probed per search.")
	fs.IntVar(&o.NList, p+"nlist", o.NList, "IVF clusters built by the index.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Address == "" {
		errs = append(errs, fmt.Errorf("milvus address is required"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("milvus timeout must be positive"))
	}
	if o.NProbe <= 0 || o.NList <= 0 || o.NProbe > o.NList {
		errs = append(errs, fmt.Errorf("milvus nprobe must be in [1, nlist], got nprobe=%d nlist=%d", o.NProbe, o.NList))
	}
	return errs
}
