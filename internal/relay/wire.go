package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/go-stomp/stomp/v3/frame"

	"github.com/gestproy/console/internal/chat"
)

// wire is the server side of one STOMP connection. Frame writes are
// serialized because fragment fan-out and receipt replies come from
// different goroutines.
type wire struct {
	logger    *slog.Logger
	broker    *Broker
	responder Responder

	reader *frame.Reader

	writeMu sync.Mutex
	writer  *frame.Writer

	// subscription id -> destination, for UNSUBSCRIBE bookkeeping.
	subDests map[string]string

	nextMessageID int
}

func newWire(nc net.Conn, broker *Broker, responder Responder, logger *slog.Logger) *wire {
	return &wire{
		logger:    logger,
		broker:    broker,
		responder: responder,
		reader:    frame.NewReader(nc),
		writer:    frame.NewWriter(nc),
		subDests:  make(map[string]string),
	}
}

// serve runs the frame loop until the client disconnects or the connection
// breaks. Protocol violations get an ERROR frame and end the connection.
func (w *wire) serve(ctx context.Context) {
	defer w.broker.UnsubscribeAll(w)

	for {
		f, err := w.reader.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				w.logger.Debug("Relay frame read failed", "error", err)
			}
			return
		}
		if f == nil {
			// Incoming heartbeat.
			continue
		}

		switch f.Command {
		case frame.CONNECT, frame.STOMP:
			if err := w.write(frame.New(frame.CONNECTED,
				frame.Version, "1.2",
				frame.HeartBeat, "0,0")); err != nil {
				return
			}
		case frame.SUBSCRIBE:
			w.handleSubscribe(f)
		case frame.UNSUBSCRIBE:
			w.handleUnsubscribe(f)
		case frame.SEND:
			w.handleSend(ctx, f)
		case frame.DISCONNECT:
			w.sendReceipt(f)
			return
		case frame.ACK, frame.NACK:
			// Auto-ack only; nothing to track.
		default:
			w.logger.Warn("Relay received unsupported frame", "command", f.Command)
			_ = w.write(frame.New(frame.ERROR,
				frame.Message, "unsupported command "+f.Command))
			return
		}
	}
}

func (w *wire) handleSubscribe(f *frame.Frame) {
	dest := f.Header.Get(frame.Destination)
	id := f.Header.Get(frame.Id)
	if dest == "" || id == "" {
		_ = w.write(frame.New(frame.ERROR, frame.Message, "subscribe requires destination and id"))
		return
	}
	w.subDests[id] = dest
	w.broker.Subscribe(dest, id, w)
	w.sendReceipt(f)
}

func (w *wire) handleUnsubscribe(f *frame.Frame) {
	id := f.Header.Get(frame.Id)
	if dest, ok := w.subDests[id]; ok {
		w.broker.Unsubscribe(dest, id, w)
		delete(w.subDests, id)
	}
	w.sendReceipt(f)
}

func (w *wire) handleSend(ctx context.Context, f *frame.Frame) {
	dest := f.Header.Get(frame.Destination)
	if dest != chat.SendDestination {
		w.logger.Warn("Relay dropping send to unknown destination", "destination", dest)
		w.sendReceipt(f)
		return
	}

	var env chat.Envelope
	if err := json.Unmarshal(f.Body, &env); err != nil {
		w.logger.Warn("Relay dropping malformed envelope", "error", err)
		w.sendReceipt(f)
		return
	}
	if env.SessionID == "" {
		w.logger.Warn("Relay dropping envelope without session id")
		w.sendReceipt(f)
		return
	}

	messagesIn.Inc()
	topic := chat.TopicDestination(env.SessionID)

	// Echo the user message back on the topic first; subscribers suppress
	// their own echoes.
	w.publishFragment(topic, chat.Fragment{
		Message:     env.Message,
		MessageType: chat.MessageTypeUser,
		SessionID:   env.SessionID,
	})

	go w.responder.Respond(ctx, env, func(frag chat.Fragment) {
		frag.SessionID = env.SessionID
		w.publishFragment(topic, frag)
	})

	w.sendReceipt(f)
}

func (w *wire) publishFragment(topic string, frag chat.Fragment) {
	payload, err := json.Marshal(frag)
	if err != nil {
		w.logger.Error("Relay failed to encode fragment", "error", err)
		return
	}
	fragmentsOut.Inc()
	w.broker.Publish(topic, payload)
}

// deliver implements the broker's subscriber side: wrap payload in a
// MESSAGE frame addressed to one subscription.
func (w *wire) deliver(destination, subID string, payload []byte) error {
	w.writeMu.Lock()
	w.nextMessageID++
	id := w.nextMessageID
	w.writeMu.Unlock()

	f := frame.New(frame.MESSAGE,
		frame.Destination, destination,
		frame.Subscription, subID,
		frame.MessageId, strconv.Itoa(id),
		frame.ContentType, "application/json")
	f.Body = payload
	return w.write(f)
}

func (w *wire) sendReceipt(f *frame.Frame) {
	receipt := f.Header.Get(frame.Receipt)
	if receipt == "" {
		return
	}
	if err := w.write(frame.New(frame.RECEIPT, frame.ReceiptId, receipt)); err != nil {
		w.logger.Debug("Relay receipt write failed", "error", err)
	}
}

func (w *wire) write(f *frame.Frame) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.writer.Write(f)
}
