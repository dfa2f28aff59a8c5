package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"inferd/pkg/types"
)

type client struct {
	addr     string
	timeoutS int
}

type generateFlags struct {
	model         string
	maxTokens     int
	topK          int
	topP          float64
	temperature   float64
	repeatLastN   int
	repeatPenalty float64
	seed          int64
	progress      bool
}

func (c *client) httpClient() *http.Client {
	return &http.Client{Timeout: time.Duration(c.timeoutS) * time.Second}
}

func (c *client) get(path string, out any) error {
	resp, err := c.httpClient().Get(strings.TrimRight(c.addr, "/") + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *client) post(path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Post(strings.TrimRight(c.addr, "/")+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode/100 != 2 {
		var apiErr types.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) models(w io.Writer) error {
	var resp types.ModelsResponse
	if err := c.get("/models", &resp); err != nil {
		return err
	}
	if len(resp.Models) == 0 {
		fmt.Fprintln(w, "no models found")
		return nil
	}
	for _, m := range resp.Models {
		if m.Quant != "" {
			fmt.Fprintf(w, "%s\t%s\n", m.ID, m.Quant)
		} else {
			fmt.Fprintln(w, m.ID)
		}
	}
	return nil
}

func (c *client) status(w io.Writer) error {
	var resp types.StatusResponse
	if err := c.get("/status", &resp); err != nil {
		return err
	}
	fmt.Fprintf(w, "state: %s  uptime: %ds  budget: %dMB used: %dMB\n",
		resp.State, resp.UptimeSeconds, resp.BudgetMB, resp.UsedMB)
	for _, inst := range resp.Instances {
		fmt.Fprintf(w, "  %s\t%s\tctx=%d slots=%d queue=%d inflight=%d\n",
			inst.ModelID, inst.State, inst.CtxSize, inst.SeqSlots, inst.QueueLen, inst.Inflight)
	}
	return nil
}

func (c *client) generate(w io.Writer, flags generateFlags, prompts []string) error {
	req := types.GenerateRequest{
		Model:         flags.model,
		Prompts:       prompts,
		MaxTokens:     flags.maxTokens,
		TopK:          flags.topK,
		TopP:          flags.topP,
		Temperature:   flags.temperature,
		RepeatLastN:   flags.repeatLastN,
		RepeatPenalty: flags.repeatPenalty,
		Seed:          flags.seed,
		ShowProgress:  flags.progress,
	}
	var resp types.GenerateResponse
	if err := c.post("/generate", req, &resp); err != nil {
		return err
	}
	for i, result := range resp.Results {
		if len(resp.Results) > 1 {
			fmt.Fprintf(w, "--- prompt %d ---\n", i)
		}
		fmt.Fprintln(w, result)
	}
	fmt.Fprintf(w, "\n[%d prompt tokens, %d generated, %d cache misses, %dms]\n",
		resp.Stats.PromptTokens, resp.Stats.GeneratedTokens, resp.Stats.CacheMisses, resp.Stats.DurationMS)
	return nil
}
