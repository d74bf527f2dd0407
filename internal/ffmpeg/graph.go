package ffmpeg

import (
	"fmt"
	"strings"
	"time"

	"github.com/kikiluvv/gravityedits/pkg/util"
)

// Input is one -i argument with the options that must precede it.
type Input struct {
	Path    string
	Options []string
}

// LoopedInput repeats a media file forever; the graph trims it.
func LoopedInput(path string) Input {
	return Input{Path: path, Options: []string{"-stream_loop", "-1"}}
}

// StillInput turns an image into a video stream of the given length.
func StillInput(path string, d time.Duration, fps float64) Input {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return Input{Path: path, Options: []string{
		"-loop", "1",
		"-framerate", fmt.Sprintf("%g", fps),
		"-t", util.FormatSeconds(d),
	}}
}

// Graph accumulates inputs and labelled filter chains for one
// -filter_complex invocation.
type Graph struct {
	inputs []Input
	chains []string
	labels map[string]int
}

// NewGraph creates an empty filter graph
func NewGraph() *Graph {
	return &Graph{labels: make(map[string]int)}
}

// AddInput registers an input and returns its index.
func (g *Graph) AddInput(in Input) int {
	g.inputs = append(g.inputs, in)
	return len(g.inputs) - 1
}

// Inputs returns the registered inputs in index order.
func (g *Graph) Inputs() []Input {
	return g.inputs
}

// VideoStream is the label of an input's first video stream.
func VideoStream(index int) string {
	return fmt.Sprintf("%d:v:0", index)
}

// AudioStream is the label of an input's first audio stream.
func AudioStream(index int) string {
	return fmt.Sprintf("%d:a:0", index)
}

// Label returns a fresh pad label starting with prefix.
func (g *Graph) Label(prefix string) string {
	n := g.labels[prefix]
	g.labels[prefix] = n + 1
	return fmt.Sprintf("%s%d", prefix, n)
}

// Chain appends "[in...]filter[out...]". Source filters pass no inputs.
func (g *Graph) Chain(in []string, filter string, out ...string) {
	var sb strings.Builder
	for _, l := range in {
		sb.WriteString("[" + l + "]")
	}
	sb.WriteString(filter)
	for _, l := range out {
		sb.WriteString("[" + l + "]")
	}
	g.chains = append(g.chains, sb.String())
}

// Len reports the number of chains added so far.
func (g *Graph) Len() int {
	return len(g.chains)
}

// Script renders the graph in -filter_complex_script form.
func (g *Graph) Script() string {
	return strings.Join(g.chains, ";\n")
}

// InputArgs renders the -i arguments for every input.
func (g *Graph) InputArgs() []string {
	var args []string
	for _, in := range g.inputs {
		args = append(args, in.Options...)
		args = append(args, "-i", in.Path)
	}
	return args
}

// Concat joins n segments that each carry v video and a audio streams.
func Concat(n, v, a int) string {
	return fmt.Sprintf("concat=n=%d:v=%d:a=%d", n, v, a)
}

// Silence is a source filter producing d of stereo silence.
func Silence(d time.Duration, sampleRate int) string {
	return fmt.Sprintf("anullsrc=r=%d:cl=stereo,atrim=duration=%s", sampleRate, util.FormatSeconds(d))
}

// OverlayFilter places a still asset at (X,Y) between Start and End.
// With SlideFrom set, y starts SlideFrom pixels lower and eases to Y.
func OverlayFilter(opts OverlayOptions) string {
	y := fmt.Sprintf("%d", opts.Y)
	if opts.SlideFrom != 0 && opts.SlideDuration > 0 {
		s := util.FormatSeconds(opts.Start)
		d := util.FormatSeconds(opts.SlideDuration)
		y = fmt.Sprintf("'if(lt(t-%s,%s),%d+%d*(1-(t-%s)/%s),%d)'",
			s, d, opts.Y, opts.SlideFrom, s, d, opts.Y)
	}
	f := fmt.Sprintf("overlay=x=%d:y=%s", opts.X, y)
	if opts.SlideFrom != 0 {
		f += ":eval=frame"
	}
	return f + fmt.Sprintf(":enable='between(t,%s,%s)':eof_action=pass",
		util.FormatSeconds(opts.Start), util.FormatSeconds(opts.End))
}
