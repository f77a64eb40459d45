package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/room4-2/zellolink/audio"
	"github.com/room4-2/zellolink/codec"
	"github.com/room4-2/zellolink/messages"
	"github.com/room4-2/zellolink/server"
)

const frameMs = 60

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	audioFile := flag.String("file", "examples/user.wav", "Audio file to transmit (16-bit mono PCM or WAV)")
	rate := flag.Int("rate", 16000, "Sample rate of raw PCM input")
	channel := flag.String("channel", "aiozello", "Channel name")
	from := flag.String("from", "emulator", "Sender username")
	password := flag.String("password", "", "Reject logons with any other password")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	pcm, sampleRate, err := loadAudioFile(*audioFile, *rate, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load audio")
	}

	enc, err := audio.NewOpusEncoder(sampleRate, 1, frameMs)
	if err != nil {
		log.WithError(err).Fatal("Failed to create encoder")
	}
	packets, err := enc.Encode(pcm)
	if err != nil {
		log.WithError(err).Fatal("Failed to encode audio")
	}
	log.WithField("packets", len(packets)).Info("🎙️ Encoded transmission")

	header := codec.Header{SampleRateHz: uint16(sampleRate), FramesPerPacket: 1, FrameSizeMs: frameMs}
	script := []server.ScriptFrame{
		server.TextFrame(messages.ChannelStatus{
			Command:     messages.CommandChannelStatus,
			Channel:     *channel,
			Status:      messages.StatusOnline,
			UsersOnline: 2,
		}),
	}
	// Simulate real-time pace
	script = append(script, server.StreamScript(*channel, *from, 1, header, packets, frameMs*time.Millisecond)...)

	srv := server.NewChannelServer(*port, script, log)
	srv.Password = *password
	srv.KeepOpen = true

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("👋 Interrupted, closing...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	if err := srv.Start(); err != nil {
		log.WithError(err).Fatal("Emulator error")
	}
}

// loadAudioFile returns samples and sample rate from a WAV or raw PCM file
func loadAudioFile(path string, rawRate int, log logrus.FieldLogger) ([]int16, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}

	sampleRate := rawRate
	if len(data) > 44 && string(data[0:4]) == "RIFF" {
		sampleRate = int(data[24]) | int(data[25])<<8 | int(data[26])<<16 | int(data[27])<<24
		log.WithField("rate", sampleRate).Info("📁 Detected WAV file, skipping header")
		data = data[44:]
	} else {
		log.Info("📁 Detected raw PCM file")
	}
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}

	samples, err := audio.BytesToInt16(data)
	if err != nil {
		return nil, 0, err
	}
	return samples, sampleRate, nil
}
