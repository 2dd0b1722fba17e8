package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/round"
	"github.com/absmach/fedcoord/worker"
)

const CTJSON string = "application/json"

type ModelResponse struct {
	coordinator.GlobalModel
	NumParams int `json:"num_params"`
}

type SDK interface {
	// Status reports the progress of the federated run.
	//
	// example:
	//  st, _ := sdk.Status()
	//  fmt.Println(st.Round, st.LearningRate)
	Status() (coordinator.Status, error)

	// ListWorkers lists the configured workers.
	//
	// example:
	//  page, _ := sdk.ListWorkers(0, 10)
	//  fmt.Println(page.Workers)
	ListWorkers(offset, limit uint64) (worker.WorkerPage, error)

	// ListRounds lists completed and failed rounds.
	//
	// example:
	//  page, _ := sdk.ListRounds(0, 10)
	//  fmt.Println(page.Rounds)
	ListRounds(offset, limit uint64) (round.Page, error)

	// GetRound gets a round record by its number.
	//
	// example:
	//  rec, _ := sdk.GetRound(11)
	//  fmt.Println(rec.Evaluations)
	GetRound(n uint64) (round.Record, error)

	// GlobalModel gets the current broadcast model.
	//
	// example:
	//  m, _ := sdk.GlobalModel()
	//  fmt.Println(m.Round, m.NumParams)
	GlobalModel() (ModelResponse, error)

	// Checkpoint gets a stored model by label, "final" or "round-<n>".
	//
	// example:
	//  m, _ := sdk.Checkpoint("final")
	//  fmt.Println(m.Round)
	Checkpoint(label string) (ModelResponse, error)
}

type fedSDK struct {
	coordinatorURL string
	client         *http.Client
}

type Config struct {
	CoordinatorURL  string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &fedSDK{
		coordinatorURL: cfg.CoordinatorURL,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

func (sdk *fedSDK) Status() (coordinator.Status, error) {
	var st coordinator.Status
	if err := sdk.get(sdk.coordinatorURL+"/status", &st); err != nil {
		return coordinator.Status{}, err
	}

	return st, nil
}

func (sdk *fedSDK) ListWorkers(offset, limit uint64) (worker.WorkerPage, error) {
	var page worker.WorkerPage
	if err := sdk.get(pageURL(sdk.coordinatorURL+"/workers", offset, limit), &page); err != nil {
		return worker.WorkerPage{}, err
	}

	return page, nil
}

func (sdk *fedSDK) ListRounds(offset, limit uint64) (round.Page, error) {
	var page round.Page
	if err := sdk.get(pageURL(sdk.coordinatorURL+"/rounds", offset, limit), &page); err != nil {
		return round.Page{}, err
	}

	return page, nil
}

func (sdk *fedSDK) GetRound(n uint64) (round.Record, error) {
	var rec round.Record
	if err := sdk.get(sdk.coordinatorURL+"/rounds/"+strconv.FormatUint(n, 10), &rec); err != nil {
		return round.Record{}, err
	}

	return rec, nil
}

func (sdk *fedSDK) GlobalModel() (ModelResponse, error) {
	var m ModelResponse
	if err := sdk.get(sdk.coordinatorURL+"/model", &m); err != nil {
		return ModelResponse{}, err
	}

	return m, nil
}

func (sdk *fedSDK) Checkpoint(label string) (ModelResponse, error) {
	var m ModelResponse
	if err := sdk.get(sdk.coordinatorURL+"/checkpoints/"+url.PathEscape(label), &m); err != nil {
		return ModelResponse{}, err
	}

	return m, nil
}

func (sdk *fedSDK) get(reqURL string, v any) error {
	body, err := sdk.processRequest(http.MethodGet, reqURL, nil, http.StatusOK)
	if err != nil {
		return err
	}

	return json.Unmarshal(body, v)
}

func pageURL(base string, offset, limit uint64) string {
	q := url.Values{}
	if offset > 0 {
		q.Set("offset", strconv.FormatUint(offset, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.FormatUint(limit, 10))
	}
	if len(q) == 0 {
		return base
	}

	return base + "?" + q.Encode()
}

func (sdk *fedSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return []byte{}, fmt.Errorf("unexpected response code %d: %s", resp.StatusCode, e.Error)
		}

		return []byte{}, fmt.Errorf("unexpected response code: %d", resp.StatusCode)
	}

	return body, nil
}
