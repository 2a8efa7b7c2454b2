// Package audio decodes a fetched video's audio track into mono 16kHz PCM
// (C4). A fast path reads RIFF/WAVE containers directly via go-audio/wav;
// anything else falls back to an ffmpeg subprocess. Recordings longer than
// a configured threshold are read from a streaming ffmpeg subprocess in
// fixed windows (see Chunker).
package audio
