package events

import (
	"github.com/codewandler/concierge-go/audio"
	"github.com/codewandler/concierge-go/tool"
)

// SetupMessage is the first message on a live channel.
type SetupMessage struct {
	Setup Setup `json:"setup"`
}

type Setup struct {
	Model             string            `json:"model"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	Tools             []tool.Set        `json:"tools,omitempty"`
	// OutputAudioTranscription asks for text transcripts of the model audio.
	OutputAudioTranscription *AudioTranscriptionConfig `json:"outputAudioTranscription,omitempty"`
}

type AudioTranscriptionConfig struct{}

type GenerationConfig struct {
	ResponseModalities []Modality    `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
	Temperature        *float64      `json:"temperature,omitempty"`
}

type SpeechConfig struct {
	VoiceConfig VoiceConfig `json:"voiceConfig"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

func Voice(name string) *SpeechConfig {
	return &SpeechConfig{VoiceConfig: VoiceConfig{PrebuiltVoiceConfig: PrebuiltVoiceConfig{VoiceName: name}}}
}

type RealtimeInputMessage struct {
	RealtimeInput RealtimeInput `json:"realtimeInput"`
}

type RealtimeInput struct {
	Audio *audio.Blob `json:"audio,omitempty"`
}

func AudioInput(b audio.Blob) RealtimeInputMessage {
	return RealtimeInputMessage{RealtimeInput: RealtimeInput{Audio: &b}}
}

type ToolResponseMessage struct {
	ToolResponse ToolResponse `json:"toolResponse"`
}

type ToolResponse struct {
	FunctionResponses []tool.Result `json:"functionResponses"`
}

func ToolResults(results ...tool.Result) ToolResponseMessage {
	return ToolResponseMessage{ToolResponse: ToolResponse{FunctionResponses: results}}
}
