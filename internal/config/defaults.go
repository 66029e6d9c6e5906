/**
* Copyright 2018 Comcast Cable Communications Management, LLC
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
* http://www.apache.org/licenses/LICENSE-2.0
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
 */

package config

const (
	defaultLogFile  = ""
	defaultLogLevel = "INFO"

	defaultMetricsListenPort    = 8082
	defaultMetricsListenAddress = ""

	defaultTracerImplementation = "stdout"

	defaultConfigHandlerPath = "/heatlink/config"
	defaultPingHandlerPath   = "/heatlink/ping"

	defaultGlobalConcurrency        = 8
	defaultUpdateIntervalMS   int64 = 300_000
	defaultCacheTTLMS         int64 = 120_000
	defaultFetchDeadlineMS    int64 = 60_000
	defaultUserAgent                = "heatlinkd/1.0"
	defaultRendererPoolSize         = 2
	defaultHealthSweepIntervalSecs  = 60

	defaultCacheType        = "memory"
	defaultMaxItemsPerSource = 500
	defaultCacheCompression  = true

	defaultBBoltFile   = "heatlink.db"
	defaultBBoltBucket = "heatlink"

	defaultRedisClientType = "standard"
	defaultRedisEndpoint   = "127.0.0.1:6379"
	defaultRedisPoolSize   = 10

	defaultStatsSinkType        = "memory"
	defaultStatsFlushIntervalS  = 300
	defaultStatsBBoltFile       = "heatlink-stats.db"
	defaultStatsBBoltBucket     = "heatlink-stats"
)
