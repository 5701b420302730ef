package cli

// This file contains the suite file format: a YAML list of page checks
// that are turned into browser test bodies.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/perfgo/webgrid/browser"
	"github.com/perfgo/webgrid/lifecycle"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// SuiteFile is the parsed form of a suite YAML file.
type SuiteFile struct {
	// Name overrides suite.name when set
	Name string `yaml:"name"`
	// Environment overrides env.name when set
	Environment string  `yaml:"environment"`
	Checks      []Check `yaml:"tests"`
}

// Check is one page check.
type Check struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	URL         string `yaml:"url"`
	// WaitVisible is a CSS selector that must become visible
	WaitVisible string `yaml:"wait_visible"`
	// TitleContains must be a substring of the page title
	TitleContains string        `yaml:"title_contains"`
	Timeout       time.Duration `yaml:"timeout"`
	// Skip marks the check as skipped with the given reason
	Skip string `yaml:"skip"`
}

// LoadSuiteFile reads and validates a suite file.
func LoadSuiteFile(path string) (*SuiteFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}
	return ParseSuiteFile(data)
}

// ParseSuiteFile parses and validates suite file contents.
func ParseSuiteFile(data []byte) (*SuiteFile, error) {
	var sf SuiteFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse suite file: %w", err)
	}
	if err := sf.validate(); err != nil {
		return nil, err
	}
	return &sf, nil
}

func (sf *SuiteFile) validate() error {
	if len(sf.Checks) == 0 {
		return errors.New("suite file contains no tests")
	}
	seen := make(map[string]bool, len(sf.Checks))
	var errs []error
	for i, c := range sf.Checks {
		switch {
		case c.Name == "":
			errs = append(errs, fmt.Errorf("test %d: missing name", i+1))
		case seen[c.Name]:
			errs = append(errs, fmt.Errorf("test %d: duplicate name %q", i+1, c.Name))
		}
		seen[c.Name] = true
		if c.URL == "" && c.Skip == "" {
			errs = append(errs, fmt.Errorf("test %q: missing url", c.Name))
		}
		if c.Timeout < 0 {
			errs = append(errs, fmt.Errorf("test %q: negative timeout", c.Name))
		}
	}
	return errors.Join(errs...)
}

// Tests converts the checks into test descriptors. A non-empty only keeps
// the named checks and fails on unknown names.
func (sf *SuiteFile) Tests(only []string) ([]lifecycle.Test, error) {
	for _, name := range only {
		if !slices.ContainsFunc(sf.Checks, func(c Check) bool { return c.Name == name }) {
			return nil, fmt.Errorf("unknown test %q", name)
		}
	}

	var tests []lifecycle.Test
	for _, c := range sf.Checks {
		if len(only) > 0 && !slices.Contains(only, c.Name) {
			continue
		}
		tests = append(tests, c.Test())
	}
	return tests, nil
}

// Test returns the descriptor running the check in the worker's browser.
func (c Check) Test() lifecycle.Test {
	return lifecycle.Test{
		Name:        c.Name,
		Description: c.Description,
		Identity:    c.Name,
		Timeout:     c.Timeout,
		Body:        c.run,
	}
}

func (c Check) run(ctx context.Context, t *lifecycle.T) error {
	if c.Skip != "" {
		return lifecycle.Skip(c.Skip)
	}
	h := t.Session().Handle()

	err := t.Step("navigate to "+c.URL, func() error {
		return browser.Run(ctx, h, chromedp.Navigate(c.URL))
	})
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", c.URL, err)
	}

	if c.WaitVisible != "" {
		err := t.Step("wait for "+c.WaitVisible, func() error {
			return browser.Run(ctx, h, chromedp.WaitVisible(c.WaitVisible, chromedp.ByQuery))
		})
		if err != nil {
			return fmt.Errorf("element %s not visible: %w", c.WaitVisible, err)
		}
	}

	if c.TitleContains != "" {
		err := t.Step("check title", func() error {
			var title string
			if err := browser.Run(ctx, h, chromedp.Title(&title)); err != nil {
				return err
			}
			note(ctx, t, "title: %s", title)
			if !strings.Contains(title, c.TitleContains) {
				return fmt.Errorf("title %q does not contain %q", title, c.TitleContains)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	note(ctx, t, "checked %s", c.URL)
	return nil
}

type reportLogger interface {
	Logf(format string, args ...any) error
}

// note writes an informational report entry. A failed write is logged and
// does not change the outcome of the check.
func note(ctx context.Context, r reportLogger, format string, args ...any) {
	if err := r.Logf(format, args...); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to write report entry")
	}
}
