package main

import (
	"encoding/binary"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// Stream audio in chunks to simulate real-time capture.
// At 44.1kHz 16-bit mono = 88200 bytes/second, 100ms chunks = 8820 bytes.
const chunkIntervalMs = 100

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

func main() {
	audioFile := flag.String("audio", "testdata/sample-44khz.wav", "Path to WAV file (16-bit mono PCM)")
	serverURL := flag.String("server", "ws://localhost:8080/", "WebSocket server URL")
	interviewID := flag.String("interview", "test-interview-"+time.Now().Format("150405"), "Interview ID")
	token := flag.String("token", "dev-token", "Access token")
	locale := flag.String("locale", "en-US", "Recognition locale")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 { // PCM
		log.Fatal("Only PCM format supported")
	}

	// One chunk per interval of real time.
	bytesPerSecond := int(sampleRate) * int(numChannels) * int(bitsPerSample) / 8
	chunkSize := bytesPerSecond * chunkIntervalMs / 1000

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("Connected to %s", *serverURL)

	// Print everything the relay sends back.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			log.Printf("<- %s", data)
		}
	}()

	send := func(e envelope) {
		data, err := json.Marshal(e)
		if err != nil {
			log.Fatalf("Failed to marshal %s: %v", e.Type, err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Fatalf("Failed to send %s: %v", e.Type, err)
		}
	}

	send(envelope{Type: "auth", Payload: map[string]string{"accessToken": *token}})
	send(envelope{Type: "speak.start", Payload: map[string]any{
		"interviewId": *interviewID,
		"locale":      *locale,
		"sampleRate":  sampleRate,
	}})

	log.Printf("Streaming audio: interviewId=%s locale=%s chunkSize=%d", *interviewID, *locale, chunkSize)

	audioChunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

	for {
		n, err := f.Read(audioChunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}

		chunkNum++
		totalBytes += int64(n)

		if err := conn.WriteMessage(websocket.BinaryMessage, audioChunk[:n]); err != nil {
			log.Fatalf("Failed to send audio frame: %v", err)
		}

		if chunkNum%10 == 0 {
			log.Printf("Sent chunk %d (%d bytes total)", chunkNum, totalBytes)
		}

		time.Sleep(chunkIntervalMs * time.Millisecond)
	}

	log.Printf("Finished streaming: %d chunks, %d bytes in %v", chunkNum, totalBytes, time.Since(startTime))

	send(envelope{Type: "speak.stop"})

	// Give the relay a moment to flush final transcripts before closing.
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	log.Println("Done")
}
