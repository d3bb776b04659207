package app

import (
	"github.com/vk/vidpipe/internal/worker"
	"github.com/vk/vidpipe/modules/dbsink"
	"github.com/vk/vidpipe/modules/filesink"
	"github.com/vk/vidpipe/modules/framestats"
	"github.com/vk/vidpipe/modules/logkeys"
	"github.com/vk/vidpipe/modules/motion"
	"github.com/vk/vidpipe/modules/vidreader"
)

// coreModules is the definitive list of worker modules compiled into the
// vidpipe binary.
var coreModules = []worker.Module{
	&vidreader.Module{},
	&framestats.Module{},
	&motion.Module{},
	&logkeys.Module{},
	&filesink.Module{},
	&dbsink.Module{},
}
