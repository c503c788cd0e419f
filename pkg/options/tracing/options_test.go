package tracing

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *Options)
		wantErr bool
	}{
		{name: "disabled skips checks", mutate: func(o *Options) { o.ExporterType = "bogus" }},
		{name: "enabled defaults", mutate: func(o *Options) { o.Enabled = true }},
		{name: "stdout needs no endpoint", mutate: func(o *Options) {
			o.Enabled, o.ExporterType, o.Endpoint = true, ExporterStdout, ""
		}},
		{name: "grpc needs endpoint", mutate: func(o *Options) {
			o.Enabled, o.Endpoint = true, ""
		}, wantErr: true},
		{name: "bad exporter", mutate: func(o *Options) {
			o.Enabled, o.ExporterType = true, "kafka"
		}, wantErr: true},
		{name: "bad ratio", mutate: func(o *Options) {
			o.Enabled, o.SamplerRatio = true, 1.5
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOptions()
			tt.mutate(o)
			errs := o.Validate()
			if tt.wantErr {
				assert.NotEmpty(t, errs)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestAddFlags(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"--tracing.enabled",
		"--tracing.exporter-type=stdout",
		"--tracing.headers=x-api-key=abc",
	}))
	assert.True(t, o.Enabled)
	assert.Equal(t, ExporterStdout, o.ExporterType)
	assert.Equal(t, "abc", o.Headers["x-api-key"])
}
