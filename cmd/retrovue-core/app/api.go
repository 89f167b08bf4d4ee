// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/retrovue/playout/internal"
	"github.com/retrovue/playout/pkg/evidence"
	"github.com/retrovue/playout/pkg/execwindow"
	"github.com/retrovue/playout/pkg/horizon"
	"github.com/retrovue/playout/pkg/override"
)

type channelSummary struct {
	ID                 string `json:"id" doc:"Channel id"`
	Timezone           string `json:"timezone" doc:"IANA timezone of the programming day"`
	DayStartHour       int    `json:"day_start_hour" doc:"Local hour the programming day starts"`
	WindowEndUTCMS     int64  `json:"window_end_utc_ms" doc:"End of the execution window, 0 when empty"`
	NextBlockCompliant bool   `json:"next_block_compliant" doc:"Whether a block covers now"`
}

type channelListResponse struct {
	Body struct {
		Channels []channelSummary `json:"channels"`
	}
}

func createListChannelsHdlr(s *Server) func(ctx context.Context, input *struct{}) (*channelListResponse, error) {
	return func(ctx context.Context, input *struct{}) (*channelListResponse, error) {
		resp := &channelListResponse{}
		for _, id := range s.core.ChannelIDs() {
			ch, _ := s.core.Channel(id)
			st := ch.Horizon.Status()
			resp.Body.Channels = append(resp.Body.Channels, channelSummary{
				ID:                 id,
				Timezone:           tzOrUTC(ch.Cfg.Timezone),
				DayStartHour:       ch.Cfg.DayStartHour,
				WindowEndUTCMS:     st.ExecutionWindowEndMS,
				NextBlockCompliant: st.NextBlockCompliant,
			})
		}
		return resp, nil
	}
}

type channelInput struct {
	ChannelID string `path:"channelID" maxLength:"64" example:"wxrv" doc:"Channel id"`
}

type horizonStatusResponse struct {
	Body horizon.Status
}

func createHorizonStatusHdlr(s *Server) func(ctx context.Context, input *channelInput) (*horizonStatusResponse, error) {
	return func(ctx context.Context, input *channelInput) (*horizonStatusResponse, error) {
		ch, ok := s.core.Channel(input.ChannelID)
		if !ok {
			return nil, huma.Error404NotFound(fmt.Sprintf("channel %s not found", input.ChannelID))
		}
		return &horizonStatusResponse{Body: ch.Horizon.Status()}, nil
	}
}

type entriesInput struct {
	ChannelID string `path:"channelID" maxLength:"64" example:"wxrv" doc:"Channel id"`
	FromUTCMS int64  `query:"from_utc_ms" doc:"Range start, UTC milliseconds"`
	ToUTCMS   int64  `query:"to_utc_ms" doc:"Range end, UTC milliseconds; 0 means no bound"`
}

type entriesResponse struct {
	Body struct {
		Entries    []execwindow.Entry `json:"entries"`
		Generation int64              `json:"generation" doc:"Highest generation in the range"`
	}
}

func createListEntriesHdlr(s *Server) func(ctx context.Context, input *entriesInput) (*entriesResponse, error) {
	return func(ctx context.Context, input *entriesInput) (*entriesResponse, error) {
		ch, ok := s.core.Channel(input.ChannelID)
		if !ok {
			return nil, huma.Error404NotFound(fmt.Sprintf("channel %s not found", input.ChannelID))
		}
		to := input.ToUTCMS
		if to == 0 {
			to = 1<<63 - 1
		}
		resp := &entriesResponse{}
		resp.Body.Entries, resp.Body.Generation = ch.Window.Snapshot(input.FromUTCMS, to)
		return resp, nil
	}
}

// publishRequest is an operator-forced replacement of an execution range.
// The override record is persisted before the window mutates; if that
// write fails the publish is refused.
type publishRequest struct {
	ChannelID string `path:"channelID" maxLength:"64" example:"wxrv" doc:"Channel id"`
	Body      struct {
		RangeStartUTCMS int64              `json:"range_start_utc_ms" doc:"Replaced range start"`
		RangeEndUTCMS   int64              `json:"range_end_utc_ms" doc:"Replaced range end"`
		ReasonCode      string             `json:"reason_code" minLength:"1" example:"BREAKING_NEWS" doc:"Operator reason code"`
		Entries         []execwindow.Entry `json:"entries" doc:"Replacement entries"`
	}
}

type publishResponse struct {
	Body struct {
		Generation int64 `json:"generation" doc:"Generation the publish committed under"`
	}
}

func createPublishHdlr(s *Server) func(ctx context.Context, input *publishRequest) (*publishResponse, error) {
	return func(ctx context.Context, input *publishRequest) (*publishResponse, error) {
		ch, ok := s.core.Channel(input.ChannelID)
		if !ok {
			return nil, huma.Error404NotFound(fmt.Sprintf("channel %s not found", input.ChannelID))
		}
		res := ch.Window.PublishAtomicReplace(ctx,
			input.Body.RangeStartUTCMS, input.Body.RangeEndUTCMS,
			input.Body.Entries, input.Body.ReasonCode, true)
		if !res.OK {
			if res.Code == override.CodePersistFailed {
				return nil, huma.Error503ServiceUnavailable(
					fmt.Sprintf("%s: override record not durable", res.Code))
			}
			return nil, huma.Error409Conflict(fmt.Sprintf("%s: publish refused", res.Code))
		}
		s.logger.Info("operator publish",
			"channel", input.ChannelID, "reason", input.Body.ReasonCode,
			"entries", len(input.Body.Entries), "generation", res.Generation)
		resp := &publishResponse{}
		resp.Body.Generation = res.Generation
		return resp, nil
	}
}

type overridesInput struct {
	Layer string `query:"layer" example:"ExecutionWindowStore" doc:"Filter by layer; empty returns all"`
}

type overridesResponse struct {
	Body struct {
		Records []override.Record `json:"records"`
	}
}

func createListOverridesHdlr(s *Server) func(ctx context.Context, input *overridesInput) (*overridesResponse, error) {
	return func(ctx context.Context, input *overridesInput) (*overridesResponse, error) {
		recs, err := s.core.Records.List(ctx, override.Layer(input.Layer))
		if err != nil {
			return nil, huma.Error500InternalServerError(err.Error())
		}
		resp := &overridesResponse{}
		resp.Body.Records = recs
		return resp, nil
	}
}

type asrunInput struct {
	ChannelID string `path:"channelID" maxLength:"64" example:"wxrv" doc:"Channel id"`
	Date      string `path:"date" pattern:"^\\d{4}-\\d{2}-\\d{2}$" example:"2025-03-01" doc:"Broadcast date"`
}

type asrunResponse struct {
	Body struct {
		Rows []evidence.AsRunRow `json:"rows"`
	}
}

func createAsRunHdlr(s *Server) func(ctx context.Context, input *asrunInput) (*asrunResponse, error) {
	return func(ctx context.Context, input *asrunInput) (*asrunResponse, error) {
		rows, err := s.core.AsRun.Rows(input.ChannelID, input.Date)
		if err != nil {
			return nil, huma.Error500InternalServerError(err.Error())
		}
		resp := &asrunResponse{}
		resp.Body.Rows = rows
		return resp, nil
	}
}

type airStartResponse struct {
	Body struct {
		PlanHandle string `json:"plan_handle" doc:"Block id handed to AIR"`
	}
}

func createAirStartHdlr(s *Server) func(ctx context.Context, input *channelInput) (*airStartResponse, error) {
	return func(ctx context.Context, input *channelInput) (*airStartResponse, error) {
		ch, ok := s.core.Channel(input.ChannelID)
		if !ok {
			return nil, huma.Error404NotFound(fmt.Sprintf("channel %s not found", input.ChannelID))
		}
		handle, err := ch.StartAir(ctx, s.Cfg.HLSTargetDurationS)
		if err != nil {
			return nil, huma.Error502BadGateway(err.Error())
		}
		resp := &airStartResponse{}
		resp.Body.PlanHandle = handle
		return resp, nil
	}
}

type airStopResponse struct {
	Body struct {
		Stopped bool `json:"stopped"`
	}
}

func createAirStopHdlr(s *Server) func(ctx context.Context, input *channelInput) (*airStopResponse, error) {
	return func(ctx context.Context, input *channelInput) (*airStopResponse, error) {
		ch, ok := s.core.Channel(input.ChannelID)
		if !ok {
			return nil, huma.Error404NotFound(fmt.Sprintf("channel %s not found", input.ChannelID))
		}
		if err := ch.StopAir(ctx); err != nil {
			return nil, huma.Error502BadGateway(err.Error())
		}
		resp := &airStopResponse{}
		resp.Body.Stopped = true
		return resp, nil
	}
}

type versionResponse struct {
	Body struct {
		Version string `json:"version"`
	}
}

func createVersionHdlr(s *Server) func(ctx context.Context, input *struct{}) (*versionResponse, error) {
	return func(ctx context.Context, input *struct{}) (*versionResponse, error) {
		resp := &versionResponse{}
		resp.Body.Version = internal.GetVersion()
		return resp, nil
	}
}

func createRouteAPI(s *Server) func(r chi.Router) {
	return func(r chi.Router) {
		config := huma.DefaultConfig("RetroVue Core operator API", "1.0.0")
		config.Servers = []*huma.Server{
			{URL: "/api"},
		}
		config.Info.Description = `Operator surface for the playout core: horizon status, execution
		window inspection, forced publishes with their audit trail, as-run retrieval, and AIR control.`

		api := humachi.New(r, config)

		huma.Register(api, huma.Operation{
			OperationID: "list-channels",
			Method:      http.MethodGet,
			Path:        "/channels",
			Summary:     "List configured channels",
			Tags:        []string{"channels"},
		}, createListChannelsHdlr(s))

		huma.Register(api, huma.Operation{
			OperationID: "horizon-status",
			Method:      http.MethodGet,
			Path:        "/channels/{channelID}/horizon",
			Summary:     "Horizon loop status for one channel",
			Description: "EPG depth, execution window end, next-block compliance, and the bounded extension attempt log.",
			Tags:        []string{"channels"},
			Errors:      []int{404},
		}, createHorizonStatusHdlr(s))

		huma.Register(api, huma.Operation{
			OperationID: "list-entries",
			Method:      http.MethodGet,
			Path:        "/channels/{channelID}/entries",
			Summary:     "Execution window entries in a range",
			Tags:        []string{"channels"},
			Errors:      []int{404},
		}, createListEntriesHdlr(s))

		huma.Register(api, huma.Operation{
			OperationID:   "publish-override",
			Method:        http.MethodPost,
			Path:          "/channels/{channelID}/publish",
			Summary:       "Force-replace an execution range",
			Description:   "Record-first: the override audit record is made durable before the window mutates.",
			Tags:          []string{"channels"},
			DefaultStatus: http.StatusCreated,
			Errors:        []int{404, 409, 503},
		}, createPublishHdlr(s))

		huma.Register(api, huma.Operation{
			OperationID: "list-overrides",
			Method:      http.MethodGet,
			Path:        "/overrides",
			Summary:     "List override audit records",
			Tags:        []string{"overrides"},
		}, createListOverridesHdlr(s))

		huma.Register(api, huma.Operation{
			OperationID: "get-asrun",
			Method:      http.MethodGet,
			Path:        "/channels/{channelID}/asrun/{date}",
			Summary:     "As-run rows for one broadcast date",
			Tags:        []string{"evidence"},
			Errors:      []int{404},
		}, createAsRunHdlr(s))

		huma.Register(api, huma.Operation{
			OperationID: "air-start",
			Method:      http.MethodPost,
			Path:        "/channels/{channelID}/air/start",
			Summary:     "Start playout on the channel's AIR process",
			Description: "Hands AIR the block covering now with its SCTE-35 splice points in the program format.",
			Tags:        []string{"air"},
			Errors:      []int{404, 502},
		}, createAirStartHdlr(s))

		huma.Register(api, huma.Operation{
			OperationID: "air-stop",
			Method:      http.MethodPost,
			Path:        "/channels/{channelID}/air/stop",
			Summary:     "Stop playout on the channel's AIR process",
			Tags:        []string{"air"},
			Errors:      []int{404, 502},
		}, createAirStopHdlr(s))

		huma.Register(api, huma.Operation{
			OperationID: "get-version",
			Method:      http.MethodGet,
			Path:        "/version",
			Summary:     "Core version",
			Tags:        []string{"meta"},
		}, createVersionHdlr(s))
	}
}
