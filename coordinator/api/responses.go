package api

import (
	"net/http"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/round"
	"github.com/absmach/fedcoord/worker"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*statusResponse)(nil)
	_ supermq.Response = (*listWorkersResponse)(nil)
	_ supermq.Response = (*roundResponse)(nil)
	_ supermq.Response = (*listRoundsResponse)(nil)
	_ supermq.Response = (*modelResponse)(nil)
)

type statusResponse struct {
	coordinator.Status
}

func (s statusResponse) Code() int {
	return http.StatusOK
}

func (s statusResponse) Headers() map[string]string {
	return map[string]string{}
}

func (s statusResponse) Empty() bool {
	return false
}

type listWorkersResponse struct {
	worker.WorkerPage
}

func (l listWorkersResponse) Code() int {
	return http.StatusOK
}

func (l listWorkersResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listWorkersResponse) Empty() bool {
	return false
}

type roundResponse struct {
	round.Record
}

func (r roundResponse) Code() int {
	return http.StatusOK
}

func (r roundResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r roundResponse) Empty() bool {
	return false
}

type listRoundsResponse struct {
	round.Page
}

func (l listRoundsResponse) Code() int {
	return http.StatusOK
}

func (l listRoundsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listRoundsResponse) Empty() bool {
	return false
}

type modelResponse struct {
	coordinator.GlobalModel
	NumParams int `json:"num_params"`
}

func (m modelResponse) Code() int {
	return http.StatusOK
}

func (m modelResponse) Headers() map[string]string {
	return map[string]string{}
}

func (m modelResponse) Empty() bool {
	return false
}
