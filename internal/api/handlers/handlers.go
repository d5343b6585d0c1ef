package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/api/handlers/activity"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/api/handlers/batches"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/api/handlers/common"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/api/handlers/guardians"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/api/handlers/requests"
)

func AttachAllRoutes(s *api.Server) {
	routes := []*echo.Route{
		common.GetHealthyRoute(s),
		common.GetReadyRoute(s),
		requests.PostCreateRequestRoute(s),
		requests.GetListRequestsRoute(s),
		requests.GetRequestRoute(s),
		requests.GetRequestPayloadRoute(s),
		requests.PostSubmitSignatureRoute(s),
		requests.GetVerificationRoute(s),
		requests.PostExecuteRequestRoute(s),
		requests.PostRejectRequestRoute(s),
		requests.DeleteRequestRoute(s),
		batches.PostCreateBatchRoute(s),
		batches.GetListBatchesRoute(s),
		batches.GetBatchRoute(s),
		batches.GetBatchPayloadRoute(s),
		batches.PostApproveBatchRoute(s),
		batches.DeleteBatchApprovalRoute(s),
		batches.PostExecuteBatchRoute(s),
		batches.PostRetryBatchRoute(s),
		batches.PostCancelBatchRoute(s),
		batches.PostExpireBatchRoute(s),
		activity.GetListActivityRoute(s),
		guardians.GetListGuardiansRoute(s),
		guardians.PostSyncGuardiansRoute(s),
	}

	if s.Config.Management.MetricsEnabled {
		routes = append(routes, common.GetMetricsRoute(s))
	}

	s.Router.Routes = append(s.Router.Routes, routes...)
}
