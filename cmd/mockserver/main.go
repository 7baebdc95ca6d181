// Command mockserver stands in for the WhatsApp edge during manual and
// integration testing. It accepts WebSocket connections on /ws, each
// served on its own goroutine, echoes a 200 status for ordinary queries, answers admin/test probes,
// and reads a stdin-driven injector that can force the next reply to
// 599 (BadSession) or 420 (a generic ServerError) for exercising the
// Connection State Machine's retry and error paths. Modeled on the
// teacher's cmd/mockcp control-plane stub.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"nhooyr.io/websocket"
)

type injector struct {
	mu       sync.Mutex
	nextCode int // 0 means "reply normally with 200"
}

func (i *injector) take() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	code := i.nextCode
	i.nextCode = 0
	return code
}

func (i *injector) set(code int) {
	i.mu.Lock()
	i.nextCode = code
	i.mu.Unlock()
}

func main() {
	addr := flag.String("addr", ":8765", "listen address")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	inj := &injector{}

	go runInjectorPrompt(inj, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		handleConn(w, r, inj, log)
	})

	log.Info("mockserver listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Error("listen", "error", err)
		os.Exit(1)
	}
}

func handleConn(w http.ResponseWriter, r *http.Request, inj *injector, log *slog.Logger) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		log.Warn("accept", "error", err)
		return
	}
	defer conn.CloseNow()
	ctx := r.Context()
	log.Info("connection accepted", "remote", r.RemoteAddr)

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			log.Info("connection closed", "error", err)
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		idx := strings.IndexByte(string(data), ',')
		if idx < 0 {
			continue
		}
		tag := string(data[:idx])
		var payload any
		_ = json.Unmarshal(data[idx+1:], &payload)

		status := 200
		if code := inj.take(); code != 0 {
			status = code
		}

		reply, _ := json.Marshal(map[string]any{"status": status})
		if err := conn.Write(ctx, websocket.MessageText, []byte(tag+","+string(reply))); err != nil {
			log.Warn("write reply", "error", err)
			return
		}
		log.Debug("replied", "tag", tag, "status", status, "query", payload)
	}
}

// runInjectorPrompt reads lines from stdin of the form "inject 599" or
// "inject 420" and arms the next reply's status code accordingly.
func runInjectorPrompt(inj *injector, log *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 || fields[0] != "inject" {
			continue
		}
		code, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, "usage: inject <status-code>")
			continue
		}
		inj.set(code)
		log.Info("armed next reply", "status", code)
	}
}
