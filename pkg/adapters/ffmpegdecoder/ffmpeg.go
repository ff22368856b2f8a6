package ffmpegdecoder

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/user/pointstream/pkg/ports"
)

// execCommand is replaced in tests.
var execCommand = exec.Command

// FindFFmpeg searches for ffmpeg.
// Priority: 1) custom path, 2) FFMPEG_PATH env, 3) PATH, 4) common locations
func FindFFmpeg(custom string) (string, error) {
	if custom != "" {
		if _, err := os.Stat(custom); err == nil {
			return custom, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", ErrFFmpegNotFound, custom)
	}

	if envPath := os.Getenv("FFMPEG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", fmt.Errorf("%w: FFMPEG_PATH %s not found", ErrFFmpegNotFound, envPath)
	}

	execName := "ffmpeg"
	if runtime.GOOS == "windows" {
		execName = "ffmpeg.exe"
	}

	path, err := exec.LookPath(execName)
	if err == nil {
		return path, nil
	}

	var commonPaths []string
	switch runtime.GOOS {
	case "windows":
		commonPaths = []string{
			`C:\ffmpeg\bin\ffmpeg.exe`,
			`C:\Program Files\ffmpeg\bin\ffmpeg.exe`,
		}
	case "darwin":
		commonPaths = []string{
			"/opt/homebrew/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/usr/bin/ffmpeg",
		}
	case "android":
		commonPaths = []string{
			"/data/local/tmp/ffmpeg",
			"/system/bin/ffmpeg",
		}
	default:
		commonPaths = []string{
			"/usr/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/snap/bin/ffmpeg",
		}
	}

	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", ErrFFmpegNotFound
}

// buildArgs returns the ffmpeg command line for a stdin to stdout decode.
func buildArgs(info codecInfo, cfg ports.CodecConfig) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-probesize", "32",
		"-analyzeduration", "0",
	}

	if cfg.Hardware != "" {
		args = append(args, "-hwaccel", hwaccels[strings.ToLower(cfg.Hardware)])
		if cfg.Device != "" {
			args = append(args, "-hwaccel_device", cfg.Device)
		}
	}

	args = append(args,
		"-f", info.demuxer,
		"-i", "pipe:0",
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", cfg.PixelFormat.String(),
		"pipe:1",
	)
	return args
}
