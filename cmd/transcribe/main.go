package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/room4-2/zellolink/gemini"
)

func main() {
	file := flag.String("file", "", "WAV recording to transcribe")
	model := flag.String("model", "", "Gemini model (default gemini-2.5-flash)")
	flag.Parse()

	_ = godotenv.Load()
	log := logrus.New()

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal("GEMINI_API_KEY not set")
	}
	if *file == "" {
		log.Fatal("-file is required")
	}

	wav, err := os.ReadFile(*file)
	if err != nil {
		log.WithError(err).Fatal("Failed to read recording")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	opts := []gemini.Option{gemini.WithLogger(log)}
	if *model != "" {
		opts = append(opts, gemini.WithModel(*model))
	}
	tr, err := gemini.NewTranscriber(ctx, apiKey, opts...)
	if err != nil {
		log.WithError(err).Fatal("Failed to create transcriber")
	}
	defer tr.Close()

	text, err := tr.Transcribe(ctx, wav)
	if err != nil {
		log.WithError(err).Fatal("Transcription failed")
	}
	fmt.Println(text)
}
