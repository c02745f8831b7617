package audio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// DecodePCM reads s16le bytes. A trailing odd byte is dropped.
func DecodePCM(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return out
}

// EncodePCM is the inverse of DecodePCM.
func EncodePCM(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// WriteWAV writes the track as a canonical 44-byte-header PCM WAV.
func WriteWAV(w io.Writer, t *Track) error {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataLen := uint32(2 * t.Len())
	byteRate := uint32(t.SampleRate * channels * bitsPerSample / 8)

	header := make([]byte, 44)
	copy(header[0:], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], 36+dataLen)
	copy(header[8:], "WAVE")
	copy(header[12:], "fmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)
	binary.LittleEndian.PutUint16(header[20:], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:], channels)
	binary.LittleEndian.PutUint32(header[24:], uint32(t.SampleRate))
	binary.LittleEndian.PutUint32(header[28:], byteRate)
	binary.LittleEndian.PutUint16(header[32:], channels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(header[34:], bitsPerSample)
	copy(header[36:], "data")
	binary.LittleEndian.PutUint32(header[40:], dataLen)

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(EncodePCM(t.samples))
	return err
}

// WriteWAVFile writes the track to path.
func WriteWAVFile(path string, t *Track) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := WriteWAV(bw, t); err != nil {
		f.Close()
		return fmt.Errorf("failed to write wav: %w", err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush wav: %w", err)
	}
	return f.Close()
}
