// Command devicesim emulates an edge device against a running bridge: it
// authenticates over HTTP, wakes a session over MQTT, streams a WAV file as
// paced UDP audio packets, and plays back the event stream it receives.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/voxkit/voxbridge/internal/audio"
	"github.com/voxkit/voxbridge/internal/codec"
	"github.com/voxkit/voxbridge/internal/gateway"
)

type deviceAuthRequest struct {
	SerialNumber string `json:"serial_number"`
	SecretKey    string `json:"secret_key"`
}

type deviceAuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	DeviceID  string    `json:"device_id"`
}

func main() {
	var (
		serial    = flag.String("serial", "VX-001", "device serial number")
		secret    = flag.String("secret", "", "device secret key")
		httpAddr  = flag.String("http", "http://localhost:8080", "bridge HTTP base URL")
		udpAddr   = flag.String("udp", "localhost:9000", "bridge UDP address")
		mqttURL   = flag.String("mqtt", "mqtt://localhost:1883", "MQTT broker URL")
		wavPath   = flag.String("wav", "", "WAV file to stream as the utterance")
		frameSize = flag.Int("frame", 1024, "payload bytes per audio packet")
		outPath   = flag.String("out", "response.wav", "where to write the response audio")
		outRate   = flag.Int("rate", 16000, "sample rate of the response audio")
	)
	flag.Parse()

	if *wavPath == "" {
		log.Fatal("usage: devicesim -wav <file.wav> [-serial ... -secret ...]")
	}

	deviceID, err := authenticate(*httpAddr, *serial, *secret)
	if err != nil {
		log.Fatal("device authentication failed: ", err)
	}
	log.Printf("authenticated as device %s", deviceID)

	data, err := os.ReadFile(*wavPath)
	if err != nil {
		log.Fatal("read wav: ", err)
	}
	pcm, info, err := audio.DecodeWAV(data)
	if err != nil {
		log.Fatal("decode wav: ", err)
	}
	log.Printf("utterance: %d bytes PCM at %d Hz", len(pcm), info.SampleRate)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cm, err := connectMQTT(ctx, *mqttURL, deviceID)
	if err != nil {
		log.Fatal("mqtt connect: ", err)
	}
	defer cm.Disconnect(context.Background())

	conn, err := net.Dial("udp", *udpAddr)
	if err != nil {
		log.Fatal("udp dial: ", err)
	}
	defer conn.Close()

	control := func(msgType string) {
		payload, _ := json.Marshal(gateway.ControlMessage{Type: msgType})
		if _, err := cm.Publish(ctx, &paho.Publish{
			Topic:   fmt.Sprintf("devices/%s/control", deviceID),
			QoS:     1,
			Payload: payload,
		}); err != nil {
			log.Print("control publish failed: ", err)
		}
	}

	control(gateway.ControlWake)
	log.Print("session woken, streaming audio")

	if err := streamAudio(conn, deviceID, pcm, info.SampleRate, *frameSize); err != nil {
		log.Fatal("stream audio: ", err)
	}
	log.Print("utterance sent, waiting for response")

	response, err := receiveResponse(conn, control)
	if err != nil {
		log.Fatal("receive response: ", err)
	}

	if len(response) > 0 {
		if err := os.WriteFile(*outPath, audio.EncodeWAV(response, *outRate, 1), 0o644); err != nil {
			log.Fatal("write response wav: ", err)
		}
		log.Printf("response audio written to %s (%d bytes PCM)", *outPath, len(response))
	}

	control(gateway.ControlSessionEnd)
	log.Print("session ended")
}

func authenticate(baseURL, serial, secret string) (string, error) {
	body, _ := json.Marshal(deviceAuthRequest{SerialNumber: serial, SecretKey: secret})
	resp, err := http.Post(baseURL+"/api/v1/device/auth", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	var auth deviceAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", err
	}
	return auth.DeviceID, nil
}

func connectMQTT(ctx context.Context, brokerURL, deviceID string) (*autopaho.ConnectionManager, error) {
	parsed, err := url.Parse(brokerURL)
	if err != nil {
		return nil, err
	}
	cm, err := autopaho.NewConnection(ctx, autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{parsed},
		KeepAlive:                     20,
		CleanStartOnInitialConnection: true,
		ClientConfig: paho.ClientConfig{
			ClientID: "devicesim-" + deviceID,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := cm.AwaitConnection(ctx); err != nil {
		return nil, err
	}
	return cm, nil
}

// streamAudio sends the utterance paced at real time, the way a device
// capturing from a microphone would.
func streamAudio(conn net.Conn, deviceID string, pcm []byte, sampleRate, frameSize int) error {
	frameDur := time.Duration(frameSize/2) * time.Second / time.Duration(sampleRate)
	ticker := time.NewTicker(frameDur)
	defer ticker.Stop()

	var seq uint32
	for off := 0; off < len(pcm); off += frameSize {
		end := off + frameSize
		if end > len(pcm) {
			end = len(pcm)
		}
		packet, err := codec.EncodeAudioPacket(&codec.AudioPacket{
			DeviceID:       deviceID,
			SequenceNumber: seq,
			Timestamp:      time.Now(),
			EndOfUtterance: end == len(pcm),
			Payload:        pcm[off:end],
		})
		if err != nil {
			return err
		}
		if _, err := conn.Write(packet); err != nil {
			return err
		}
		seq++
		<-ticker.C
	}
	return nil
}

// receiveResponse drains the event stream for one turn, acknowledging
// playback when the audio finishes. Returns the accumulated response PCM.
func receiveResponse(conn net.Conn, control func(msgType string)) ([]byte, error) {
	var response []byte
	buf := make([]byte, 65536)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(30 * time.Second)); err != nil {
			return nil, err
		}
		n, err := conn.Read(buf)
		if err != nil {
			return nil, err
		}
		ev, err := codec.DecodeEvent(buf[:n])
		if err != nil {
			log.Print("undecodable event dropped: ", err)
			continue
		}

		switch ev.Type {
		case codec.EventPartialTranscript:
			log.Printf("partial: %s", ev.Text)
		case codec.EventFinalTranscript:
			log.Printf("you said: %s", ev.Text)
		case codec.EventStartAudio:
			log.Printf("assistant: %s", ev.Text)
		case codec.EventAudioChunk:
			response = append(response, ev.Audio...)
		case codec.EventEndAudio:
			control(gateway.ControlPlaybackAck)
		case codec.EventEndResponse:
			return response, nil
		case codec.EventError:
			return response, fmt.Errorf("session error %s: %s", ev.Code, ev.Message)
		}
	}
}
