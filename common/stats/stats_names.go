package stats

/*
This file defines all the metrics being collected. As new metrics are added please follow this pattern.
*/

const (
	/************************* Scheduler metrics **************************/
	/*
		time spent in one scheduler step
	*/
	SchedStepLatency_ms = "stepLatency_ms"

	/*
		number of steps skipped because every process slot is in use
	*/
	SchedNoCapacityCounter = "noCapacityCounter"

	/*
		number of steps skipped because no GPU passed selection
	*/
	SchedNoGpuCounter = "noGpuCounter"

	/*
		number of steps skipped because the task queue was empty
	*/
	SchedQueueEmptyCounter = "queueEmptyCounter"

	/*
		number of tasks handed to the supervisor
	*/
	SchedDispatchedCounter = "dispatchedCounter"

	/*
		number of dispatches that were rejected or failed to start, task was put back
	*/
	SchedDispatchErrCounter = "dispatchErrCounter"

	/*
		number of terminal notifications by outcome
	*/
	SchedCompletedCounter = "completedCounter"
	SchedFailedCounter    = "failedCounter"
	SchedKilledCounter    = "killedCounter"

	/*
		number of times a task was put back into the queue after FAILED or KILLED
	*/
	SchedRequeuedCounter = "requeuedCounter"

	/*
		1 while the scheduling loop is running, 0 otherwise
	*/
	SchedRunningGauge = "runningGauge"

	/*
		number of task copies still waiting in the queue
	*/
	SchedQueueLenGauge = "queueLenGauge"

	/*
		number of persist failures while recording a completed run
	*/
	SchedRunCountPersistErrCounter = "runCountPersistErrCounter"

	/*
		number of completed runs not yet persisted, retried on every step
	*/
	SchedUnsavedRunsGauge = "unsavedRunsGauge"

	/************************* Supervisor metrics **************************/
	/*
		number of processes currently in a non terminal state
	*/
	SupervisorActiveGauge = "activeGauge"

	/*
		configured process limit
	*/
	SupervisorMaxProcessesGauge = "maxProcessesGauge"

	/*
		number of spawn attempts rejected because the supervisor is full
	*/
	SupervisorCapacityRejectedCounter = "capacityRejectedCounter"

	/*
		number of processes that could not be started by the OS
	*/
	SupervisorStartErrCounter = "startErrCounter"

	/*
		number of kill requests, and those that could not confirm the process group gone
	*/
	SupervisorKillCounter        = "killCounter"
	SupervisorKillTimeoutCounter = "killTimeoutCounter"

	/*
		how long processes ran, from start to terminal state
	*/
	SupervisorProcessLatency_ms = "processLatency_ms"

	/************************* GPU pool metrics **************************/
	/*
		number of telemetry queries that failed, the prior snapshot is kept
	*/
	GpuTelemetryErrCounter = "telemetryErrCounter"

	/*
		time spent querying telemetry for one device
	*/
	GpuQueryLatency_ms = "queryLatency_ms"

	/*
		number of GPUs currently marked available
	*/
	GpuAvailableGauge = "availableGauge"

	/************************* Server metrics **************************/
	/*
		number of control requests served, and those answered with an error
	*/
	ServerRequestCounter    = "requestCounter"
	ServerRequestErrCounter = "requestErrCounter"

	/*
		record the start of the server
	*/
	ServerStartedGauge = "serverStartGauge"
)
