package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/kikiluvv/gravityedits/pkg/util"
)

// ProbeVideo extracts metadata from a media file
func (e *Executor) ProbeVideo(ctx context.Context, filePath string) (*VideoInfo, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path is required")
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeOutput(filePath, output)
}

func parseProbeOutput(filePath string, output []byte) (*VideoInfo, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &VideoInfo{
		FilePath: filePath,
	}

	if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = util.Seconds(dur)
	}

	if br, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
		info.Bitrate = br
	}

	var streamDuration time.Duration
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if info.HasVideo || stream.Disposition.AttachedPic == 1 {
				continue
			}
			info.HasVideo = true
			info.Width = stream.Width
			info.Height = stream.Height
			info.VideoCodec = stream.CodecName

			// r_frame_rate is e.g. "30/1"
			if stream.RFrameRate != "" {
				info.FPS = util.ParseFrameRate(stream.RFrameRate)
			}

			if r, err := strconv.Atoi(stream.Tags.Rotate); err == nil {
				info.Rotation = r
			}
			for _, sd := range stream.SideDataList {
				if sd.Rotation != 0 {
					info.Rotation = sd.Rotation
				}
			}
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			info.AudioCodec = stream.CodecName
		default:
			continue
		}
		if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil && util.Seconds(d) > streamDuration {
			streamDuration = util.Seconds(d)
		}
	}

	if info.Duration == 0 {
		info.Duration = streamDuration
	}
	if !info.HasVideo && !info.HasAudio {
		return nil, fmt.Errorf("no audio or video streams in %s", filePath)
	}

	return info, nil
}

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType   string `json:"codec_type"`
		CodecName   string `json:"codec_name"`
		Width       int    `json:"width"`
		Height      int    `json:"height"`
		RFrameRate  string `json:"r_frame_rate"`
		Duration    string `json:"duration"`
		Disposition struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
		Tags struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []struct {
			Rotation int `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
}
