package metrics

// Canonical instrument names used by the dispatcher (supplemented feature,
// see SPEC_FULL.md). Keeping them here, rather than scattering string
// literals, means a swapped Provider implementation sees a stable surface.
const (
	TasksRoutedTotal        = "rrdispatch_tasks_routed_total"
	TasksCancelledTotal     = "rrdispatch_tasks_cancelled_total"
	TasksFailedTotal        = "rrdispatch_tasks_failed_total"
	WorkersSpawnedTotal     = "rrdispatch_workers_spawned_total"
	WorkersDiedTotal        = "rrdispatch_workers_died_total"
	ResetsTotal             = "rrdispatch_resets_total"
	WorkersActive           = "rrdispatch_workers_active"
	InterruptAckSeconds     = "rrdispatch_interrupt_ack_seconds"
	TaskDispatchLatencySecs = "rrdispatch_task_dispatch_latency_seconds"
)
