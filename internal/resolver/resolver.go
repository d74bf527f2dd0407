// Package resolver maps the logical media names used in timelines to files
// on disk.
package resolver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/kikiluvv/gravityedits/pkg/util"
	"github.com/rs/zerolog"
)

// ErrSourceNotFound is returned when no strategy locates the media.
var ErrSourceNotFound = errors.New("source not found")

// DefaultExtensions are tried, in order, for names without an extension.
var DefaultExtensions = []string{".mp4", ".mov", ".mkv"}

// SourceMediaDir is the per-project media folder name.
const SourceMediaDir = "source_media"

// Options locates the media roots.
type Options struct {
	UploadDir    string
	ProjectsDir  string
	FallbackRoot string
	Extensions   []string
}

// ProjectContext identifies the project a timeline belongs to.
type ProjectContext struct {
	Name string
}

// Strategy proposes candidate directories and file names for a lookup.
type Strategy struct {
	Name  string
	Dirs  func(r *Resolver, pc ProjectContext) []string
	Names func(r *Resolver, base string) []string
}

// Resolver runs an ordered list of strategies; the first hit wins.
type Resolver struct {
	logger     zerolog.Logger
	opts       Options
	strategies []Strategy
}

// New creates a resolver with the default strategy order: flat uploads,
// project folder, project-name prefix, fallback root, extension guessing
// across those four, then a scan of sibling projects.
func New(logger zerolog.Logger, opts Options) *Resolver {
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	return &Resolver{
		logger: logger.With().Str("component", "resolver").Logger(),
		opts:   opts,
		strategies: []Strategy{
			{Name: "uploads", Dirs: (*Resolver).uploadDirs, Names: exactName},
			{Name: "project", Dirs: (*Resolver).projectDirs, Names: exactName},
			{Name: "project-prefix", Dirs: (*Resolver).prefixDirs, Names: exactName},
			{Name: "fallback-root", Dirs: (*Resolver).fallbackDirs, Names: exactName},
			{Name: "extension-guess", Dirs: (*Resolver).knownDirs, Names: (*Resolver).guessedNames},
			{Name: "sibling-scan", Dirs: (*Resolver).siblingDirs, Names: (*Resolver).allNames},
		},
	}
}

// Strategies returns the strategy names in lookup order.
func (r *Resolver) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name
	}
	return names
}

// Resolve returns the path of name. Only the base name is used, so a
// timeline can never reach outside the configured roots.
func (r *Resolver) Resolve(name string, pc ProjectContext) (string, error) {
	base := filepath.Base(filepath.Clean(strings.TrimSpace(name)))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("%w: empty name", ErrSourceNotFound)
	}

	for _, s := range r.strategies {
		if p, ok := r.search(s.Dirs(r, pc), s.Names(r, base)); ok {
			r.logger.Debug().
				Str("source", name).
				Str("strategy", s.Name).
				Str("path", p).
				Msg("source resolved")
			return p, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrSourceNotFound, name)
}

func exactName(_ *Resolver, base string) []string {
	return []string{base}
}

func (r *Resolver) guessedNames(base string) []string {
	if filepath.Ext(base) != "" {
		return nil
	}
	names := make([]string, 0, len(r.opts.Extensions))
	for _, ext := range r.opts.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		names = append(names, base+ext)
	}
	return names
}

func (r *Resolver) allNames(base string) []string {
	return append([]string{base}, r.guessedNames(base)...)
}

func (r *Resolver) search(dirs, names []string) (string, bool) {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, n := range names {
			p := filepath.Join(dir, n)
			if util.IsRegularFile(p) {
				return p, true
			}
		}
	}
	return "", false
}

func (r *Resolver) uploadDirs(ProjectContext) []string {
	return []string{r.opts.UploadDir}
}

func (r *Resolver) projectDirs(pc ProjectContext) []string {
	name := SanitizeProjectName(pc.Name)
	if name == "" || r.opts.ProjectsDir == "" {
		return nil
	}
	return []string{filepath.Join(r.opts.ProjectsDir, name, SourceMediaDir)}
}

// prefixDirs lets derivative projects ("trip_shorts") use the media of
// their parent ("trip").
func (r *Resolver) prefixDirs(pc ProjectContext) []string {
	name := SanitizeProjectName(pc.Name)
	if r.opts.ProjectsDir == "" || !strings.Contains(name, "_") {
		return nil
	}
	prefix := strings.TrimSpace(strings.SplitN(name, "_", 2)[0])
	if prefix == "" || prefix == name {
		return nil
	}
	return []string{filepath.Join(r.opts.ProjectsDir, prefix, SourceMediaDir)}
}

func (r *Resolver) fallbackDirs(ProjectContext) []string {
	return []string{r.opts.FallbackRoot}
}

func (r *Resolver) knownDirs(pc ProjectContext) []string {
	var dirs []string
	dirs = append(dirs, r.uploadDirs(pc)...)
	dirs = append(dirs, r.projectDirs(pc)...)
	dirs = append(dirs, r.prefixDirs(pc)...)
	dirs = append(dirs, r.fallbackDirs(pc)...)
	return dirs
}

func (r *Resolver) siblingDirs(ProjectContext) []string {
	if r.opts.ProjectsDir == "" {
		return nil
	}
	entries, err := os.ReadDir(r.opts.ProjectsDir)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(r.opts.ProjectsDir, e.Name(), SourceMediaDir))
		}
	}
	sort.Strings(dirs)
	return dirs
}

// SanitizeProjectName keeps letters, digits, spaces, '_' and '-', then
// trims surrounding space.
func SanitizeProjectName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '_' || r == '-' {
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}
