package scheduler

import (
	"regexp"
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"github.com/flowline/flowline/task"
)

// CommandBuilder renders the shell command running config on gpuID.
type CommandBuilder func(config task.Config, gpuID int) (string, error)

// ProgramParam names the config parameter that overrides the builder's program.
// It is not passed to the program as a flag.
const ProgramParam = "program"

// DefaultCommandTemplate pins the program to the chosen GPU and passes every
// other parameter as "--name value".
const DefaultCommandTemplate = `CUDA_VISIBLE_DEVICES={{.GPU}} {{.Program}}{{range .Args}} --{{.Name}} {{quote .Value}}{{end}}`

// Data available to command templates.
// GPU - index of the chosen device.
// Program - the program to run.
// Args - config parameters in order, without ProgramParam.
// Config - every config parameter by name, for templates that place values explicitly.
type commandData struct {
	GPU     int
	Program string
	Args    task.Config
	Config  map[string]string
}

// TemplateBuilder returns a CommandBuilder executing text/template text, with
// program run unless a task sets ProgramParam. Templates may call quote to
// shell-quote a value.
func TemplateBuilder(text, program string) (CommandBuilder, error) {
	tmpl, err := template.New("command").
		Funcs(template.FuncMap{"quote": shellQuote}).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "parsing command template")
	}

	return func(config task.Config, gpuID int) (string, error) {
		data := commandData{GPU: gpuID, Program: program, Config: make(map[string]string, len(config))}
		for _, p := range config {
			data.Config[p.Name] = p.Value
			if p.Name == ProgramParam {
				data.Program = p.Value
				continue
			}
			data.Args = append(data.Args, p)
		}
		if data.Program == "" {
			return "", errors.Errorf("no program for config %q", config)
		}
		var b strings.Builder
		if err := tmpl.Execute(&b, data); err != nil {
			return "", errors.Wrapf(err, "rendering command for config %q", config)
		}
		return b.String(), nil
	}, nil
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_./:,@%+=-]+$`)

func shellQuote(s string) string {
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
