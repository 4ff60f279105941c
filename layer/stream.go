package layer

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/heremaps/olp-sdk-go/apilookup"
	"github.com/heremaps/olp-sdk-go/blob"
	"github.com/heremaps/olp-sdk-go/cancel"
	"github.com/heremaps/olp-sdk-go/hrn"
	olperrors "github.com/heremaps/olp-sdk-go/pkg/errors"
)

// SubscriptionMode selects how multiple consumers sharing a
// subscription_id split partitions between them (original_source's
// kSubscriptionModeSerial/kSubscriptionModeParallel).
type SubscriptionMode int

const (
	SubscriptionModeParallel SubscriptionMode = iota
	SubscriptionModeSerial
)

func (m SubscriptionMode) String() string {
	if m == SubscriptionModeSerial {
		return "serial"
	}
	return "parallel"
}

// SubscribeRequest configures Subscribe (spec §4.J "subscribe(request)").
type SubscribeRequest struct {
	SubscriptionID     string
	Mode               SubscriptionMode
	ConsumerID         string
	ConsumerProperties map[string]string
}

// StreamOffset addresses one partition's position in a stream layer.
type StreamOffset struct {
	Partition string `json:"partition"`
	Offset    int64  `json:"offset"`
}

// MessageMetadata carries a stream message's addressing and size fields —
// everything needed to fetch its data via GetData.
type MessageMetadata struct {
	PartitionID        string `json:"partition"`
	DataHandle         string `json:"dataHandle,omitempty"`
	DataSize           *int64 `json:"dataSize,omitempty"`
	Checksum           string `json:"checksum,omitempty"`
	CompressedDataSize *int64 `json:"compressedDataSize,omitempty"`
	Timestamp          int64  `json:"timestamp,omitempty"`
}

// Message is one decoded stream message (spec §4.J "get_data(message)").
type Message struct {
	Metadata MessageMetadata `json:"metaData"`
	Offset   StreamOffset    `json:"offset"`
	Data     []byte          `json:"data,omitempty"`
}

// streamSession is the context a successful Subscribe establishes and every
// later call on the same client requires (spec §4.J: "Streaming client
// additionally holds session context {subscription_id, subscription_mode,
// correlation_id, node_base_url} created on subscribe, required by every
// subsequent call").
type streamSession struct {
	subscriptionID  string
	subscriptionMode string
	correlationID   string
	nodeBaseURL     string
}

// StreamLayerClient is the public surface for a streaming layer (spec
// §4.J), matching original_source's StreamLayerClientImpl.
type StreamLayerClient struct {
	env     *Environment
	catalog hrn.HRN
	layerID string
	blobs   *blob.Repository

	mu      sync.Mutex
	session *streamSession
}

// NewStreamLayerClient builds a client bound to (catalog, layerID).
func NewStreamLayerClient(catalog hrn.HRN, layerID string, env *Environment) *StreamLayerClient {
	return &StreamLayerClient{
		env:     env,
		catalog: catalog,
		layerID: layerID,
		blobs:   blob.NewRepository(env.Transport, env.Cache, env.Lookup, env.Mutexes, catalog, layerID, env.Logger),
	}
}

// Subscribe opens a subscription and stores its session context for every
// subsequent call (spec §4.J "subscribe(request)"; "subscribe fails if
// already subscribed").
func (c *StreamLayerClient) Subscribe(ctx *cancel.Context, req SubscribeRequest) (string, error) {
	return runTask(c.env.Tasks, ctx, func(taskCtx *cancel.Context) (string, error) {
		c.mu.Lock()
		if c.session != nil {
			existing := c.session.subscriptionID
			c.mu.Unlock()
			return "", olperrors.Newf(olperrors.PreconditionFailed, "layer: already subscribed (subscription_id=%s)", existing)
		}
		c.mu.Unlock()

		endpoint, err := c.env.Lookup.Lookup(taskCtx, c.catalog, "stream", 2, apilookup.OnlineIfNotFound)
		if err != nil {
			return "", err
		}

		body, err := json.Marshal(struct {
			SubscriptionID     string            `json:"subscriptionId,omitempty"`
			SubscriptionMode   string            `json:"subscriptionMode"`
			ConsumerID         string            `json:"consumerId,omitempty"`
			ConsumerProperties map[string]string `json:"consumerProperties,omitempty"`
		}{
			SubscriptionID:     req.SubscriptionID,
			SubscriptionMode:   req.Mode.String(),
			ConsumerID:         req.ConsumerID,
			ConsumerProperties: req.ConsumerProperties,
		})
		if err != nil {
			return "", olperrors.NewUnknown("layer: encoding subscribe request", err)
		}

		correlationID := uuid.NewString()
		path := endpoint.BaseURL + "/layers/" + c.layerID + "/subscribe"
		httpReq, err := http.NewRequest(http.MethodPost, path, bytes.NewReader(body))
		if err != nil {
			return "", olperrors.NewUnknown("layer: building subscribe request", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-Correlation-Id", correlationID)

		resp, err := c.env.Transport.Do(taskCtx, httpReq)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return "", olperrors.Newf(olperrors.Unknown, "layer: subscribe failed (status %d)", resp.StatusCode)
		}

		var decoded struct {
			SubscriptionID string `json:"subscriptionId"`
			NodeBaseURL    string `json:"nodeBaseURL"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return "", olperrors.NewUnknown("layer: parsing subscribe response", err)
		}
		returnedCorrelationID := resp.Header.Get("X-Correlation-Id")
		if returnedCorrelationID != "" {
			correlationID = returnedCorrelationID
		}

		c.mu.Lock()
		c.session = &streamSession{
			subscriptionID:   decoded.SubscriptionID,
			subscriptionMode: req.Mode.String(),
			correlationID:    correlationID,
			nodeBaseURL:      decoded.NodeBaseURL,
		}
		c.mu.Unlock()

		return decoded.SubscriptionID, nil
	})
}

// Unsubscribe tears down the active subscription (spec §4.J
// "unsubscribe()"; "fails if not subscribed").
func (c *StreamLayerClient) Unsubscribe(ctx *cancel.Context) error {
	_, err := runTask(c.env.Tasks, ctx, func(taskCtx *cancel.Context) (struct{}, error) {
		session, err := c.requireSession()
		if err != nil {
			return struct{}{}, err
		}

		path := session.nodeBaseURL + "/layers/" + c.layerID + "/subscribe?subscriptionId=" + session.subscriptionID + "&mode=" + session.subscriptionMode
		httpReq, err := http.NewRequest(http.MethodDelete, path, nil)
		if err != nil {
			return struct{}{}, olperrors.NewUnknown("layer: building unsubscribe request", err)
		}
		httpReq.Header.Set("X-Correlation-Id", session.correlationID)

		resp, err := c.env.Transport.Do(taskCtx, httpReq)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
			return struct{}{}, olperrors.Newf(olperrors.Unknown, "layer: unsubscribe failed (status %d)", resp.StatusCode)
		}

		c.mu.Lock()
		c.session = nil
		c.mu.Unlock()
		return struct{}{}, nil
	})
	return err
}

// Poll fetches the next batch of messages and commits their offsets before
// returning them (spec §4.J "poll()"; "offsets returned by poll are
// automatically committed before the messages are returned"). SPEC_FULL
// §6 supplement: a commit failure doesn't discard the already-fetched
// messages — it surfaces as the secondary return value.
func (c *StreamLayerClient) Poll(ctx *cancel.Context) ([]Message, error) {
	type pollResult struct {
		messages  []Message
		commitErr error
	}
	res, err := runTask(c.env.Tasks, ctx, func(taskCtx *cancel.Context) (pollResult, error) {
		session, err := c.requireSession()
		if err != nil {
			return pollResult{}, err
		}

		path := session.nodeBaseURL + "/layers/" + c.layerID + "/partitions?subscriptionId=" + session.subscriptionID + "&mode=" + session.subscriptionMode
		httpReq, err := http.NewRequest(http.MethodGet, path, nil)
		if err != nil {
			return pollResult{}, olperrors.NewUnknown("layer: building poll request", err)
		}
		httpReq.Header.Set("X-Correlation-Id", session.correlationID)

		resp, err := c.env.Transport.Do(taskCtx, httpReq)
		if err != nil {
			return pollResult{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return pollResult{}, olperrors.Newf(olperrors.Unknown, "layer: poll failed (status %d)", resp.StatusCode)
		}

		var decoded struct {
			Messages []Message `json:"messages"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return pollResult{}, olperrors.NewUnknown("layer: parsing poll response", err)
		}
		if len(decoded.Messages) == 0 {
			return pollResult{messages: decoded.Messages}, nil
		}

		offsets := latestOffsetPerPartition(decoded.Messages)
		commitErr := c.commitOffsets(taskCtx, session, offsets)
		return pollResult{messages: decoded.Messages, commitErr: commitErr}, nil
	})
	if err != nil {
		return nil, err
	}
	return res.messages, res.commitErr
}

// latestOffsetPerPartition keeps only the highest offset seen per
// partition, mirroring original_source's std::set<StreamOffset> keyed by
// partition — the same commit-dedup behavior, expressed with a Go map
// instead of a sorted set.
func latestOffsetPerPartition(messages []Message) []StreamOffset {
	latest := make(map[string]int64, len(messages))
	for _, m := range messages {
		if cur, ok := latest[m.Offset.Partition]; !ok || m.Offset.Offset > cur {
			latest[m.Offset.Partition] = m.Offset.Offset
		}
	}
	offsets := make([]StreamOffset, 0, len(latest))
	for partition, offset := range latest {
		offsets = append(offsets, StreamOffset{Partition: partition, Offset: offset})
	}
	return offsets
}

func (c *StreamLayerClient) commitOffsets(ctx *cancel.Context, session *streamSession, offsets []StreamOffset) error {
	body, err := json.Marshal(struct {
		Offsets []StreamOffset `json:"offsets"`
	}{Offsets: offsets})
	if err != nil {
		return olperrors.NewUnknown("layer: encoding commit offsets request", err)
	}

	path := session.nodeBaseURL + "/layers/" + c.layerID + "/offsets?subscriptionId=" + session.subscriptionID + "&mode=" + session.subscriptionMode
	httpReq, err := http.NewRequest(http.MethodPut, path, bytes.NewReader(body))
	if err != nil {
		return olperrors.NewUnknown("layer: building commit offsets request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Correlation-Id", session.correlationID)

	resp, err := c.env.Transport.Do(ctx, httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return olperrors.Newf(olperrors.Unknown, "layer: commit offsets failed (status %d)", resp.StatusCode)
	}
	return nil
}

// Seek repositions the subscription's consumption point (spec §4.J
// "seek(offsets)"; "fails if not subscribed").
func (c *StreamLayerClient) Seek(ctx *cancel.Context, offsets []StreamOffset) error {
	if len(offsets) == 0 {
		return olperrors.NewPreconditionFailed("layer: seek requires at least one offset")
	}
	_, err := runTask(c.env.Tasks, ctx, func(taskCtx *cancel.Context) (struct{}, error) {
		session, err := c.requireSession()
		if err != nil {
			return struct{}{}, err
		}

		body, err := json.Marshal(struct {
			Offsets []StreamOffset `json:"offsets"`
		}{Offsets: offsets})
		if err != nil {
			return struct{}{}, olperrors.NewUnknown("layer: encoding seek request", err)
		}

		path := session.nodeBaseURL + "/layers/" + c.layerID + "/seek?subscriptionId=" + session.subscriptionID + "&mode=" + session.subscriptionMode
		httpReq, err := http.NewRequest(http.MethodPut, path, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, olperrors.NewUnknown("layer: building seek request", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-Correlation-Id", session.correlationID)

		resp, err := c.env.Transport.Do(taskCtx, httpReq)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
			return struct{}{}, olperrors.Newf(olperrors.Unknown, "layer: seek failed (status %d)", resp.StatusCode)
		}
		return struct{}{}, nil
	})
	return err
}

// GetData fetches a stream message's bytes by its embedded data handle
// (spec §4.J "get_data(message)"). A message with no data handle (one that
// already embeds its payload inline) is a PreconditionFailed, mirroring
// original_source's "data handle is missing" check.
func (c *StreamLayerClient) GetData(ctx *cancel.Context, msg Message) ([]byte, error) {
	if msg.Metadata.DataHandle == "" {
		return nil, olperrors.NewPreconditionFailed("layer: message does not contain a data handle")
	}
	return runTask(c.env.Tasks, ctx, func(taskCtx *cancel.Context) ([]byte, error) {
		return c.blobs.GetData(taskCtx, blob.ServiceBlob, msg.Metadata.DataHandle, msg.Metadata.DataSize, apilookup.OnlineIfNotFound, "", nil)
	})
}

func (c *StreamLayerClient) requireSession() (*streamSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, olperrors.NewPreconditionFailed("layer: subscription missing")
	}
	return c.session, nil
}

// CancelPendingRequests cancels every task in flight on the shared task
// sink (spec §5 "cancel_pending_requests").
func (c *StreamLayerClient) CancelPendingRequests() {
	c.env.Tasks.CancelAll()
}
