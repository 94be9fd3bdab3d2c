package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	flightAltitude = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ascent_flight_altitude_meters",
		Help: "Altitude of the last telemetry sample.",
	})
	flightSpeed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ascent_flight_speed_mps",
		Help: "Speed of the last telemetry sample.",
	})
	flightMass = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ascent_flight_mass_kg",
		Help: "Vehicle mass of the last telemetry sample.",
	})
	flightMissionTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ascent_flight_mission_time_seconds",
		Help: "Mission elapsed time of the last telemetry sample.",
	})
	flightApoapsis = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ascent_flight_apoapsis_meters",
		Help: "Apoapsis altitude at the last guidance tick.",
	})
	flightTimeToApoapsis = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ascent_flight_time_to_apoapsis_seconds",
		Help: "Time to apoapsis at the last guidance tick.",
	})
	commandPitch = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ascent_command_pitch_degrees",
		Help: "Last commanded pitch above the horizon.",
	})
	commandThrottle = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ascent_command_throttle_ratio",
		Help: "Last commanded throttle.",
	})
	flightPhase = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ascent_flight_phase",
		Help: "1 for the active flight phase, 0 otherwise.",
	}, []string{"phase"})

	tickDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ascent_control_tick_duration_seconds",
		Help:    "Time spent reading, deciding and commanding in one control tick, excluding the wait.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"phase"})

	telemetryRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ascent_telemetry_retries_total",
		Help: "Retried vehicle calls by operation.",
	}, []string{"op"})
	telemetryFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ascent_telemetry_failures_total",
		Help: "Vehicle calls that failed after all retries, by operation.",
	}, []string{"op"})
	stageEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ascent_stage_events_total",
		Help: "Staging events fired.",
	})
	missionAborts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ascent_mission_aborts_total",
		Help: "Control loops that ended in a mission abort.",
	})

	simulationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ascent_simulation_duration_seconds",
		Help:    "Wall time of trajectory simulations.",
		Buckets: prometheus.DefBuckets,
	})
	simulationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ascent_simulation_failures_total",
		Help: "Trajectory simulations that returned an error.",
	})
	simulationCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ascent_simulation_cache_total",
		Help: "Simulation cache lookups by result (hit or miss).",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		flightAltitude, flightSpeed, flightMass, flightMissionTime,
		flightApoapsis, flightTimeToApoapsis,
		commandPitch, commandThrottle, flightPhase,
		tickDuration, telemetryRetries, telemetryFailures,
		stageEvents, missionAborts,
		simulationDuration, simulationFailures, simulationCache,
	)
}

// SetSample publishes the latest telemetry reading.
func SetSample(missionTime, speed, altitude, mass float64) {
	flightMissionTime.Set(missionTime)
	flightSpeed.Set(speed)
	flightAltitude.Set(altitude)
	flightMass.Set(mass)
}

// SetOrbit publishes apoapsis and time to apoapsis.
func SetOrbit(apoapsis, timeToApoapsis float64) {
	flightApoapsis.Set(apoapsis)
	flightTimeToApoapsis.Set(timeToApoapsis)
}

// SetCommand publishes the last issued pitch and throttle.
func SetCommand(pitch, throttle float64) {
	commandPitch.Set(pitch)
	commandThrottle.Set(throttle)
}

// SetPhase marks phase active and every other name in all inactive.
func SetPhase(phase string, all []string) {
	for _, p := range all {
		v := 0.0
		if p == phase {
			v = 1
		}
		flightPhase.WithLabelValues(p).Set(v)
	}
}

// ObserveTick records the working time of one control tick.
func ObserveTick(phase string, d time.Duration) {
	tickDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// IncTelemetryRetry counts one retried vehicle call.
func IncTelemetryRetry(op string) {
	telemetryRetries.WithLabelValues(op).Inc()
}

// IncTelemetryFailure counts one vehicle call that exhausted its retries.
func IncTelemetryFailure(op string) {
	telemetryFailures.WithLabelValues(op).Inc()
}

// IncStageEvents counts one staging event.
func IncStageEvents() {
	stageEvents.Inc()
}

// IncMissionAborts counts one aborted control loop.
func IncMissionAborts() {
	missionAborts.Inc()
}

// ObserveSimulation records one simulation run.
func ObserveSimulation(d time.Duration, err error) {
	simulationDuration.Observe(d.Seconds())
	if err != nil {
		simulationFailures.Inc()
	}
}

// IncSimulationCache counts a simulation cache lookup ("hit" or "miss").
func IncSimulationCache(result string) {
	simulationCache.WithLabelValues(result).Inc()
}
