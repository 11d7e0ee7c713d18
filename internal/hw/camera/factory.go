package camera

import (
	"context"
	"errors"
	"fmt"

	"github.com/cjeanneret/unicam/internal/debug"
	"github.com/cjeanneret/unicam/internal/hw/sdk"
)

// New connects a camera of the given type. The camera takes ownership of
// drv and closes it on Close. The simulated type ignores drv.
func New(ctx context.Context, typ Type, drv sdk.Driver, opts Options) (*Universal, error) {
	opts = opts.withDefaults()
	warn := &warnLog{}

	var v variant
	switch typ {
	case TypeStreaming:
		v = newStreaming(drv, opts, warn)
	case TypePaced:
		v = newPaced(drv, opts, warn)
	case TypeSimulated:
		v = newSimulated(opts.Simulated)
	default:
		return nil, fmt.Errorf("unknown camera type %q", typ)
	}
	if typ != TypeSimulated && drv == nil {
		return nil, fmt.Errorf("%s camera needs an SDK driver", typ)
	}

	debug.Section("Camera")
	table, err := v.connect(ctx)
	if err == nil {
		err = table.Validate()
	}
	if err != nil {
		if cerr := v.close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, fmt.Errorf("connect %s camera: %w", typ, err)
	}

	c := &Universal{typ: typ, v: v, opts: opts, table: table, warn: warn}
	c.enforceDefaults()
	debug.Value("Type", typ)
	debug.Value("Supported", c.Supported())
	return c, nil
}

// With connects a camera, runs fn with it and always closes it, also when
// fn fails or panics.
func With(ctx context.Context, typ Type, drv sdk.Driver, opts Options, fn func(*Universal) error) error {
	c, err := New(ctx, typ, drv, opts)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}
