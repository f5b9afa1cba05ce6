package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/Aidin1998/taskpredict/common/errors"
	"github.com/Aidin1998/taskpredict/internal/ensemble"
	"github.com/Aidin1998/taskpredict/internal/features"
	"github.com/Aidin1998/taskpredict/internal/predictor"
	"github.com/Aidin1998/taskpredict/pkg/models"
)

func (s *Server) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.errs.Respond(c, errors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}

func (s *Server) handleHealth(c *gin.Context) {
	info := s.service.Info()
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:       "ok",
		ModelLoaded:  info.Loaded,
		ModelVersion: info.Version,
	})
}

func (s *Server) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.Info())
}

func (s *Server) handleVersions(c *gin.Context) {
	versions, err := s.service.Versions()
	if err != nil {
		s.errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

func (s *Server) handlePredict(c *gin.Context) {
	var req models.Task
	if !s.bind(c, &req) {
		return
	}
	pred, err := s.service.Predict(req.Vector())
	if err != nil {
		s.errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, pred)
}

func (s *Server) handlePredictBatch(c *gin.Context) {
	var req models.BatchPredictRequest
	if !s.bind(c, &req) {
		return
	}
	vectors := lo.Map(req.Tasks, func(t models.Task, _ int) features.Vector {
		return t.Vector()
	})
	result, err := s.service.PredictBatch(vectors)
	if err != nil {
		s.errs.Respond(c, err)
		return
	}

	items := lo.Map(result.Items, func(item predictor.BatchItem, _ int) models.BatchItem {
		out := models.BatchItem{Index: item.Index}
		if item.Err != nil {
			out.Error = item.Err.Error()
			return out
		}
		out.PredictedTime = &item.Prediction.PredictedTime
		out.Confidence = &item.Prediction.Confidence
		return out
	})
	c.JSON(http.StatusOK, models.BatchPredictResponse{
		Predictions:   items,
		Count:         result.Succeeded,
		Failed:        result.Failed,
		MeanPredicted: result.MeanPredicted,
		ModelVersion:  result.ModelVersion,
		ModelType:     result.ModelType,
	})
}

func (s *Server) handlePredictCalibrated(c *gin.Context) {
	var req models.Task
	if !s.bind(c, &req) {
		return
	}
	preds, err := s.service.CalibratedPredict([]features.Vector{req.Vector()})
	if err != nil {
		s.errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, preds[0])
}

func (s *Server) handleTrain(c *gin.Context) {
	var req models.TrainRequest
	if !s.bind(c, &req) {
		return
	}
	family := ensemble.Family(req.ModelType)
	if req.ModelType == "" {
		family = s.service.DefaultFamily()
	}
	examples := lo.Map(req.Data, func(e models.TrainExample, _ int) features.Example {
		return e.Example()
	})
	result, err := s.service.Train(c.Request.Context(), family, examples)
	if err != nil {
		s.errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleRetrain(c *gin.Context) {
	var req models.RetrainRequest
	if !s.bind(c, &req) {
		return
	}
	examples := lo.Map(req.Data, func(e models.TrainExample, _ int) features.Example {
		return e.Example()
	})
	result, err := s.service.Retrain(c.Request.Context(), examples, req.Incremental)
	if err != nil {
		s.errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleSwitch(c *gin.Context) {
	var req models.SwitchRequest
	if !s.bind(c, &req) {
		return
	}
	result, err := s.service.SwitchFamily(c.Request.Context(), ensemble.Family(req.ModelType))
	if err != nil {
		s.errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleCompare(c *gin.Context) {
	var req models.CompareRequest
	if !s.bind(c, &req) {
		return
	}
	comparison, err := s.service.Compare(c.Request.Context(),
		ensemble.Family(req.ModelA), ensemble.Family(req.ModelB))
	if err != nil {
		s.errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, comparison)
}

func (s *Server) handleExplain(c *gin.Context) {
	var req models.Task
	if !s.bind(c, &req) {
		return
	}
	attribution, err := s.service.Explain(req.Vector())
	if err != nil {
		s.errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, attribution)
}

func (s *Server) handleTune(c *gin.Context) {
	var req models.TuneRequest
	if !s.bind(c, &req) {
		return
	}
	trials := req.Trials
	if trials == 0 {
		trials = 30
	}
	tuned, trained, err := s.service.Tune(c.Request.Context(), ensemble.Family(req.ModelType), trials, req.Apply)
	if err != nil {
		s.errs.Respond(c, err)
		return
	}
	resp := gin.H{"tuning": tuned}
	if trained != nil {
		resp["training"] = trained
	}
	c.JSON(http.StatusOK, resp)
}
