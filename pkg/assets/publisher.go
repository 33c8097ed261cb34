package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rubiojr/slotweave/pkg/log"
)

// Publisher mirrors component stylesheets into the public directory.
//
// The source tree SourceDir/ComponentsDir is copied to
// PublicDir/Mount/ComponentsDir: .css files as they are, .scss and .sass
// files compiled to <stem>.css with the sass binary.
type Publisher struct {
	SourceDir     string
	ComponentsDir string
	PublicDir     string
	Mount         string
	SassBinary    string

	// Debounce is how long Watch waits for more events before publishing.
	Debounce time.Duration

	logger *log.Logger
}

// Report lists what a Publish run did, with paths relative to the public
// directory.
type Report struct {
	Copied   []string
	Compiled []string
	Skipped  []string
}

// Total is the number of stylesheets published.
func (r *Report) Total() int {
	return len(r.Copied) + len(r.Compiled)
}

// NewPublisher creates a publisher with the default debounce.
func NewPublisher(sourceDir, componentsDir, publicDir, mount, sassBinary string) *Publisher {
	return &Publisher{
		SourceDir:     sourceDir,
		ComponentsDir: componentsDir,
		PublicDir:     publicDir,
		Mount:         mount,
		SassBinary:    sassBinary,
		Debounce:      250 * time.Millisecond,
		logger:        log.ForService("publish"),
	}
}

func (p *Publisher) sourceRoot() string {
	return filepath.Join(p.SourceDir, filepath.FromSlash(p.ComponentsDir))
}

// TargetRoot is the directory the stylesheets are published to.
func (p *Publisher) TargetRoot() string {
	return filepath.Join(p.PublicDir, filepath.FromSlash(p.Mount), filepath.FromSlash(p.ComponentsDir))
}

// Publish removes and recreates the target tree, then copies or compiles
// every stylesheet of the components tree.
func (p *Publisher) Publish(ctx context.Context) (*Report, error) {
	target := p.TargetRoot()
	if err := os.RemoveAll(target); err != nil {
		return nil, fmt.Errorf("cleaning %s: %w", target, err)
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", target, err)
	}

	sass := p.sassPath()
	report := &Report{}
	root := p.sourceRoot()
	err := filepath.WalkDir(root, func(src string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		name, ok := StylesheetName(d.Name())
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(root, src)
		if err != nil {
			return err
		}
		dst := filepath.Join(target, filepath.Dir(rel), name)
		publicRel, _ := filepath.Rel(p.PublicDir, dst)
		publicRel = filepath.ToSlash(publicRel)

		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
		}
		if name == d.Name() {
			if _, err := os.Stat(dst); err == nil {
				p.logger.Warnf("%s already published, overwriting", publicRel)
			}
			if err := copyFile(src, dst); err != nil {
				return err
			}
			p.logger.Infof("copied %s", publicRel)
			report.Copied = append(report.Copied, publicRel)
			return nil
		}
		if sass == "" {
			p.logger.Warnf("no sass binary, skipping %s", rel)
			report.Skipped = append(report.Skipped, filepath.ToSlash(rel))
			return nil
		}
		if err := compileSass(ctx, sass, src, dst); err != nil {
			return err
		}
		p.logger.Infof("compiled %s", publicRel)
		report.Compiled = append(report.Compiled, publicRel)
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !dirExists(root) {
			p.logger.Warnf("components directory %s does not exist, nothing to publish", root)
			return report, nil
		}
		return report, fmt.Errorf("publishing stylesheets: %w", err)
	}
	sort.Strings(report.Copied)
	sort.Strings(report.Compiled)
	return report, nil
}

func (p *Publisher) sassPath() string {
	if p.SassBinary == "" {
		return ""
	}
	path, err := exec.LookPath(p.SassBinary)
	if err != nil {
		p.logger.Debugf("sass binary %s not found: %v", p.SassBinary, err)
		return ""
	}
	return path
}

func compileSass(ctx context.Context, sass, src, dst string) error {
	cmd := exec.CommandContext(ctx, sass, "--no-source-map", src, dst)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("compiling %s: %w: %s", src, err, out)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// Watch publishes again whenever a file below the components tree changes
// and calls onChange with the report. Bursts of events within Debounce are
// folded into one run. Watch blocks until ctx is done.
func (p *Publisher) Watch(ctx context.Context, onChange func(*Report)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			p.logger.Warnf("failed to close watcher: %v", err)
		}
	}()

	if err := p.watchTree(watcher, p.sourceRoot()); err != nil {
		return err
	}
	p.logger.Infof("watching %s for stylesheet changes", p.sourceRoot())

	timer := time.NewTimer(p.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && dirExists(event.Name) {
				if err := p.watchTree(watcher, event.Name); err != nil {
					p.logger.Warnf("failed to watch %s: %v", event.Name, err)
				}
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				p.logger.Debugf("%s (%s)", event.Name, event.Op)
				timer.Reset(p.Debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warnf("watcher error: %v", err)
		case <-timer.C:
			report, err := p.Publish(ctx)
			if err != nil {
				p.logger.Errorf("publish failed: %v", err)
				continue
			}
			if onChange != nil {
				onChange(report)
			}
		}
	}
}

func (p *Publisher) watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(dir string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		return nil
	})
}
