package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Option configures a single Load call.
type Option func(*options)

type options struct {
	prefix   string
	envFiles []string
}

// WithPrefix parses variables as PREFIX + tag name. The prefix is part of the
// cache key, so the same struct may be loaded with different prefixes.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithEnvFiles loads the given files instead of the default .env.
// Unlike the default file, missing explicit files are reported as errors.
func WithEnvFiles(files ...string) Option {
	return func(o *options) { o.envFiles = append(o.envFiles, files...) }
}

type entry struct {
	once  sync.Once
	value any
	err   error
}

var (
	cacheMu sync.Mutex
	cache   = make(map[string]*entry)

	defaultEnvOnce sync.Once
)

// Load parses the environment into a value of type T.
// Successful results are cached per type and prefix; failures are cached too,
// so a misconfigured process fails the same way on every call.
func Load[T any](opts ...Option) (T, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if len(o.envFiles) > 0 {
		if err := godotenv.Load(o.envFiles...); err != nil {
			var zero T
			return zero, errors.Join(ErrEnvFile, err)
		}
	} else {
		defaultEnvOnce.Do(func() {
			// .env is optional
			_ = godotenv.Load()
		})
	}

	key := cacheKey[T](o.prefix)

	cacheMu.Lock()
	e, ok := cache[key]
	if !ok {
		e = &entry{}
		cache[key] = e
	}
	cacheMu.Unlock()

	e.once.Do(func() {
		var v T
		if err := env.ParseWithOptions(&v, env.Options{Prefix: o.prefix}); err != nil {
			e.err = errors.Join(ErrParsingConfig, err)
			return
		}
		e.value = v
	})

	if e.err != nil {
		var zero T
		return zero, e.err
	}
	return e.value.(T), nil
}

// MustLoad is like Load but panics on error. Use it in main only.
func MustLoad[T any](opts ...Option) T {
	v, err := Load[T](opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
	return v
}

// Reset drops every cached configuration.
func Reset() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = make(map[string]*entry)
}

func cacheKey[T any](prefix string) string {
	t := reflect.TypeFor[T]()
	return prefix + "|" + t.PkgPath() + "." + t.String()
}
