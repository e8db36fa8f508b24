package franklin

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

type socketControl struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}

type socketMessage struct {
	Event string `json:"event"`
	Update
}

func (c *Client) socketURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/socket"
	return u.String(), nil
}

// Subscribe streams progress of jobID to handler until ctx is done or the
// returned stop func is called. It returns once the server confirmed the join.
func (c *Client) Subscribe(ctx context.Context, jobID string, handler func(Update)) (func(), error) {
	endpoint, err := c.socketURL()
	if err != nil {
		return nil, err
	}
	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	if err := conn.WriteJSON(socketControl{Type: "join", JobID: jobID}); err != nil {
		conn.Close()
		return nil, err
	}

	event := "process:" + jobID + ":update"

	// updates can arrive ahead of the join ack
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var msg socketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()
			return nil, err
		}
		if msg.Event == event {
			handler(msg.Update)
			continue
		}
		if msg.Event == "joined" && msg.JobID == jobID {
			break
		}
	}
	_ = conn.SetReadDeadline(time.Time{})

	var once sync.Once
	stop := func() { once.Do(func() { conn.Close() }) }

	go func() {
		<-ctx.Done()
		stop()
	}()
	go func() {
		defer stop()
		for {
			var msg socketMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Event == event {
				handler(msg.Update)
			}
		}
	}()
	return stop, nil
}

type outcome struct {
	status string
	err    error
	jobErr *JobError
}

// Wait blocks until jobID completes or fails, then returns the result. Push
// and poll run together and the first terminal observation wins. The wait is
// capped at the poll interval times the max poll count.
func (c *Client) Wait(ctx context.Context, jobID string, onUpdate func(Update)) (*Result, error) {
	parent := ctx
	ceiling := c.pollInterval * time.Duration(c.maxPolls)
	ctx, cancel := context.WithTimeout(ctx, ceiling)
	defer cancel()

	done := make(chan outcome, 2)
	var once sync.Once
	finish := func(o outcome) {
		once.Do(func() { done <- o })
	}

	var mu sync.Mutex
	last := -1
	report := func(u Update) {
		if onUpdate == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if u.Progress < last {
			return
		}
		last = u.Progress
		onUpdate(u)
	}

	if c.push {
		stop, err := c.Subscribe(ctx, jobID, func(u Update) {
			report(u)
			if u.Status == "completed" || u.Status == "failed" {
				finish(outcome{status: u.Status, jobErr: u.Error})
			}
		})
		if err == nil {
			defer stop()
		}
	}

	go c.poll(ctx, jobID, report, finish)

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrWaitTimeout
		}
		return nil, ctx.Err()
	}
	cancel()

	if o.err != nil {
		return nil, o.err
	}
	if o.status == "failed" {
		je := JobError{Message: "job failed"}
		if o.jobErr != nil {
			je = *o.jobErr
		}
		return nil, &JobFailedError{JobID: jobID, Err: je}
	}
	return c.fetchResult(parent, jobID)
}

func (c *Client) poll(ctx context.Context, jobID string, report func(Update), finish func(outcome)) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < c.maxPolls; attempt++ {
		st, err := c.Status(ctx, jobID)
		var apiErr *APIError
		switch {
		case err == nil:
			report(Update{JobID: st.JobID, Stage: st.Stage, Message: st.Message, Progress: st.Progress, Status: st.Status, Error: st.Error})
			if st.Terminal() {
				finish(outcome{status: st.Status, jobErr: st.Error})
				return
			}
		case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
			finish(outcome{err: err})
			return
		case ctx.Err() != nil:
			return
		}
		// 503 and transport errors are retried on the next tick

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// fetchResult reads the result, retrying briefly while the store is unavailable.
func (c *Client) fetchResult(parent context.Context, jobID string) (*Result, error) {
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	for {
		res, err := c.Result(ctx, jobID)
		var apiErr *APIError
		if err == nil || !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
			return res, err
		}
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(c.pollInterval):
		}
	}
}
