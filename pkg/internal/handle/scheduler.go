package handle

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/sourcelens/pkg/middleware"
	"github.com/yeisme/sourcelens/pkg/scheduler"
)

func jobErrorStatus(err error) int {
	if errors.Is(err, scheduler.ErrJobNotFound) {
		return http.StatusNotFound
	}

	return http.StatusInternalServerError
}

// SchedulerJobs 返回所有调度器任务信息.
func SchedulerJobs(c *gin.Context) {
	sched := middleware.GetScheduler(c)
	if sched == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not running"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": sched.GetJobInfos()})
}

// SchedulerJob 按名称返回任务信息.
func SchedulerJob(c *gin.Context) {
	sched := middleware.GetScheduler(c)
	if sched == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not running"})
		return
	}

	info, err := sched.GetJobInfoByName(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, info)
}

// SchedulerRunJob 立即执行一次任务.
func SchedulerRunJob(c *gin.Context) {
	sched := middleware.GetScheduler(c)
	if sched == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not running"})
		return
	}

	if err := sched.RunNow(c.Param("name")); err != nil {
		c.JSON(jobErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "job triggered"})
}

// SchedulerRemoveJob 按名称删除任务.
func SchedulerRemoveJob(c *gin.Context) {
	sched := middleware.GetScheduler(c)
	if sched == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not running"})
		return
	}

	if err := sched.RemoveJobByName(c.Param("name")); err != nil {
		c.JSON(jobErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "job removed"})
}
