package cmd

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"voiceclick/internal/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and external tools",
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	Name   string
	Detail string
	OK     bool
}

type toolProbe struct {
	lookPath func(string) (string, error)
	stat     func(string) (os.FileInfo, error)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(out, "FAIL config: %v\n", err)
		return err
	}

	results := doctorChecks(cfg, toolProbe{lookPath: exec.LookPath, stat: os.Stat})
	if !printChecks(out, results) {
		return fmt.Errorf("some checks failed")
	}
	return nil
}

func doctorChecks(cfg config.Config, probe toolProbe) []checkResult {
	file := cfg.File
	if file == "" {
		file = "defaults (no config file)"
	}
	results := []checkResult{{Name: "config", Detail: file, OK: true}}

	switch cfg.Engine.Provider {
	case "whispercpp":
		results = append(results, probe.binary("whisper binary", cfg.Whisper.Binary))
		if _, err := probe.stat(cfg.Whisper.ModelPath); err != nil {
			results = append(results, checkResult{Name: "whisper model", Detail: cfg.Whisper.ModelPath + " not found", OK: false})
		} else {
			results = append(results, checkResult{Name: "whisper model", Detail: cfg.Whisper.ModelPath, OK: true})
		}
	case "openai":
		results = append(results, apiKeyCheck("openai api key", cfg.OpenAI.APIKey, "OPENAI_API_KEY"))
	case "deepgram":
		results = append(results, apiKeyCheck("deepgram api key", cfg.Deepgram.APIKey, "DEEPGRAM_API_KEY"))
	}

	if cfg.Audio.Backend == "ffmpeg" {
		results = append(results, probe.binary("ffmpeg", cfg.Audio.RecorderCommand))
	}
	if cfg.Detector.FocusProbe == "x11" {
		results = append(results, probe.binary("xdotool", "xdotool"))
		results = append(results, probe.binary("xprop", "xprop"))
	}
	return results
}

func (p toolProbe) binary(name, command string) checkResult {
	path, err := p.lookPath(command)
	if err != nil {
		return checkResult{Name: name, Detail: command + " not on PATH", OK: false}
	}
	return checkResult{Name: name, Detail: path, OK: true}
}

func apiKeyCheck(name, key, env string) checkResult {
	if key == "" {
		return checkResult{Name: name, Detail: "set " + env + " or the config file key", OK: false}
	}
	return checkResult{Name: name, Detail: "configured", OK: true}
}

func printChecks(w io.Writer, results []checkResult) bool {
	healthy := true
	for _, result := range results {
		status := "ok  "
		if !result.OK {
			status = "FAIL"
			healthy = false
		}
		fmt.Fprintf(w, "%s %-16s %s\n", status, result.Name, result.Detail)
	}
	return healthy
}
