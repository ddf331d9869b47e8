package device

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/gin-gonic/gin"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/klog/v2"

	"omrongateway/pkg/apis"
	"omrongateway/pkg/apis/response"
	"omrongateway/pkg/runtime"
	v1 "omrongateway/pkg/v1"
)

func InstallHandler(group *gin.RouterGroup, mgr *Manager) {
	group.POST("/controllers", createController(mgr))
	group.DELETE("/controllers/:id", deleteController(mgr))
	group.PATCH("/controllers/:id", patchControllerById(mgr))
	group.PUT("/controllers/:id", updateControllerById(mgr))
	group.GET("/controllers", listControllers(mgr))
	group.GET("/controllers/:id", getControllerById(mgr))
	group.PUT("/controllers/:id/:status", switchControllerStatusById(mgr))
	group.PUT("/controllers/:id/action", controlControllerById(mgr))
	group.GET("/controllers/:id/variables", getVariablesById(mgr))
	group.GET("/controllers/:id/monitors", getMonitorsById(mgr))
	group.POST("/controllers/:id/acquisition", startAcquisition(mgr))
	group.DELETE("/controllers/:id/acquisition", stopAcquisition(mgr))
	group.GET("/controllers/:id/acquisition", getAcquisitionSnapshot(mgr))
	group.PUT("/controllers/:id/acquisition", executeAcquisitionCommand(mgr))
	group.POST("/controllers/scan", scanControllers(mgr))
}

func createController(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		object := &v1.PowerController{}
		if err := c.ShouldBindJSON(object); err != nil {
			klog.V(2).InfoS("Failed to parse controller", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		d, err := mgr.CreateController(object)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			return
		}

		// TODO use different scheme
		c.Header(apis.ETag, fmt.Sprintf("%s", d.GetVersion()))
		c.Header(apis.Location, fmt.Sprintf("https://%s%s/%s", c.Request.Host, c.Request.RequestURI, d.GetID()))
		c.JSON(http.StatusCreated, d)
	}
}

func deleteController(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		eTag := c.GetHeader(apis.IfMatch)
		if len(eTag) == 0 {
			c.Status(http.StatusPreconditionRequired)
			return
		}
		controller, err := mgr.DeleteController(id, eTag)
		if err != nil {
			if os.IsNotExist(err) {
				c.Status(http.StatusNotFound)
			} else if errors.Is(err, apis.ErrMismatch) {
				c.Status(http.StatusPreconditionFailed)
			} else {
				c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			}
			return
		}
		c.JSON(http.StatusOK, controller)
	}
}

func patchControllerById(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		contentType := c.GetHeader("Content-Type")
		// Remove "; charset=" if included in header.
		if idx := strings.Index(contentType, ";"); idx > 0 {
			contentType = contentType[:idx]
		}

		if !patchTypes.Has(contentType) {
			c.Status(http.StatusUnsupportedMediaType)
			return
		}

		eTag := c.GetHeader(apis.IfMatch)
		if len(eTag) == 0 {
			c.Status(http.StatusPreconditionRequired)
			return
		}

		patchBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			klog.V(3).InfoS("Failed to read", "err", err)
			c.Status(http.StatusInternalServerError)
			return
		}

		id := c.Param("id")
		old, err := mgr.GetControllerById(id, true)
		if err != nil {
			c.Status(http.StatusNotFound)
			return
		}

		// Patches apply against the request-body shape of the document.
		versionedJS, err := json.Marshal(&v1.PowerController{
			PublishMeta: v1.PublishMeta{Topic: old.GetTopic()},
			Name:        old.GetName(),
			Address:     &v1.SerialAddress{Location: old.GetAddress()},
			UnitNo:      old.GetUnitNo(),
		})
		if err != nil {
			klog.V(3).InfoS("Failed to marshal", "err", err)
			c.Status(http.StatusInternalServerError)
			return
		}

		patchedJS, err := applyJSPatch(types.PatchType(contentType), patchBytes, versionedJS)
		if err != nil {
			c.JSONP(http.StatusBadRequest, response.NewMultiError(err))
			return
		}

		newObj := &v1.PowerController{}
		if err := json.NewDecoder(bytes.NewBuffer(patchedJS)).Decode(newObj); err != nil {
			klog.V(3).InfoS("Failed to decode", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}

		updated, err := mgr.UpdateControllerById(id, eTag, newObj)
		if err != nil {
			switch {
			case os.IsNotExist(err):
				c.Status(http.StatusNotFound)
			case errors.Is(err, apis.ErrMismatch):
				c.Status(http.StatusPreconditionFailed)
			default:
				if response.IsResponseError(err) {
					c.JSON(http.StatusBadRequest, response.NewMultiError(err))
				} else {
					c.Status(http.StatusInternalServerError)
				}
			}
			return
		}

		c.Header(apis.ETag, updated.GetVersion())
		c.JSON(http.StatusOK, updated)
	}
}

func updateControllerById(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		eTag := c.GetHeader(apis.IfMatch)
		if len(eTag) == 0 {
			c.Status(http.StatusPreconditionRequired)
			return
		}

		id := c.Param("id")
		if _, err := mgr.GetControllerById(id, true); err != nil {
			c.Status(http.StatusNotFound)
			return
		}

		newObj := &v1.PowerController{}
		if err := json.NewDecoder(c.Request.Body).Decode(newObj); err != nil {
			klog.V(3).InfoS("Failed to decode", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}

		updated, err := mgr.UpdateControllerById(id, eTag, newObj)
		if err != nil {
			switch {
			case os.IsNotExist(err):
				c.Status(http.StatusNotFound)
			case errors.Is(err, apis.ErrMismatch):
				c.Status(http.StatusPreconditionFailed)
			default:
				if response.IsResponseError(err) {
					c.JSON(http.StatusBadRequest, response.NewMultiError(err))
				} else {
					c.Status(http.StatusInternalServerError)
				}
			}
			return
		}

		if updated != nil {
			c.Header(apis.ETag, updated.GetVersion())
		}
		c.JSON(http.StatusOK, updated)
	}
}

func listControllers(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		query := c.Request.URL.Query()
		exploded := false
		filter := runtime.ControllerFilter{}
		if len(query) > 0 {
			v := query.Get(apis.Filter)
			if len(v) > 0 {
				if err := json.Unmarshal([]byte(v), &filter); err != nil {
					c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
					return
				}
			}
			exploded, _ = strconv.ParseBool(query.Get("exploded"))
		}
		rcs, _ := mgr.ListControllers(&filter, exploded)

		c.JSON(http.StatusOK, &runtime.ResponseModel{Controllers: rcs})
	}
}

func getControllerById(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		id := c.Param("id")
		query := c.Request.URL.Query()
		exploded := false
		if len(query) > 0 {
			exploded, _ = strconv.ParseBool(query.Get("exploded"))
		}
		rc, err := mgr.GetControllerById(id, exploded)
		if err != nil {
			if os.IsNotExist(err) {
				c.Status(http.StatusNotFound)
			} else {
				c.Status(http.StatusInternalServerError)
			}
			return
		}

		c.Header(apis.ETag, fmt.Sprintf("%s", rc.GetVersion()))
		c.JSON(http.StatusOK, rc)
	}
}

func switchControllerStatusById(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		id := c.Param("id")
		status := c.Param("status")
		if err := mgr.SwitchControllerStatus(id, status); err != nil {
			if os.IsNotExist(err) {
				c.Status(http.StatusNotFound)
			} else {
				c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			}
			return
		}
		c.Status(http.StatusAccepted)
	}
}

func controlControllerById(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		id := c.Param("id")
		var actions []v1.Action
		if err := json.NewDecoder(c.Request.Body).Decode(&actions); err != nil {
			klog.V(3).InfoS("Failed to parse action", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}

		if err := mgr.DeliverAction(id, actions); err != nil {
			c.JSON(http.StatusBadRequest, err)
			return
		}

		c.Status(http.StatusAccepted)
	}
}

func getVariablesById(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		id := c.Param("id")
		var names []string
		if v := c.Query("names"); len(v) > 0 {
			names = strings.Split(v, ",")
		}

		reading, err := mgr.GetVariables(id, names)
		if err != nil {
			if response.IsResponseError(err) {
				c.JSON(http.StatusNotFound, response.NewMultiError(err))
			} else {
				c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			}
			return
		}
		c.JSON(http.StatusOK, reading)
	}
}

func getMonitorsById(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		id := c.Param("id")
		reading, err := mgr.Monitors(id)
		if err != nil {
			if response.IsResponseError(err) {
				c.JSON(http.StatusNotFound, response.NewMultiError(err))
			} else {
				c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			}
			return
		}
		c.JSON(http.StatusOK, reading)
	}
}

func startAcquisition(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		spec := &v1.Acquisition{}
		if err := c.ShouldBindJSON(spec); err != nil {
			klog.V(2).InfoS("Failed to parse acquisition", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}

		if err := mgr.StartAcquisition(id, spec); err != nil {
			if response.IsResponseError(err) {
				c.JSON(http.StatusConflict, response.NewMultiError(err))
			} else {
				c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			}
			return
		}
		c.Status(http.StatusAccepted)
	}
}

func stopAcquisition(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		id := c.Param("id")
		if err := mgr.StopAcquisition(id); err != nil {
			c.JSON(http.StatusNotFound, response.NewMultiError(err))
			return
		}
		c.Status(http.StatusAccepted)
	}
}

func getAcquisitionSnapshot(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		id := c.Param("id")
		snapshot := mgr.LatestSnapshot(id)
		if snapshot == nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.JSON(http.StatusOK, snapshot)
	}
}

func executeAcquisitionCommand(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		id := c.Param("id")
		var body map[string]interface{}
		if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}

		value, err := mgr.ExecuteCommand(id, body)
		if err != nil {
			if response.IsResponseError(err) {
				c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			} else {
				c.Status(http.StatusInternalServerError)
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"value": value})
	}
}

func scanControllers(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		var target struct {
			Addresses []string `json:"addresses"`
		}
		if err := json.NewDecoder(c.Request.Body).Decode(&target); err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		c.JSON(http.StatusOK, mgr.Scan(target.Addresses))
	}
}

func applyJSPatch(patchType types.PatchType, patchBytes, versionedJS []byte) (patchedJS []byte, err error) {
	switch patchType {
	case types.JSONPatchType:
		patchObj, err := jsonpatch.DecodePatch(patchBytes)
		if err != nil {
			return nil, response.ErrMalformedJSON
		}
		if len(patchObj) > maxJSONPatchOperations {
			klog.V(3).InfoS("Too many json patch operations", "count", len(patchObj))
			return nil, response.ErrTooManyJsonPatchOperations(maxJSONPatchOperations)
		}
		patchedJS, err := patchObj.Apply(versionedJS)
		if err != nil {
			klog.V(3).InfoS("Failed to apply json patch", "err", err)
			return nil, response.ErrMalformedJSON
		}
		return patchedJS, nil
	case types.MergePatchType:
		patchedJS, err = jsonpatch.MergePatch(versionedJS, patchBytes)
		if err != nil {
			klog.V(3).InfoS("Failed to apply json merge patch", "err", err)
			return nil, response.ErrMalformedJSON
		}
		return patchedJS, err
	default:
		// only here as a safety net - gin filters content-type
		return nil, fmt.Errorf("unknown Content-Type header for patch: %v", patchType)
	}
}
