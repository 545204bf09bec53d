package course

// Vec3 is a world-space position supplied by the simulation client.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Quat is a rotation quaternion supplied by the simulation client.
type Quat struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
	W float64 `json:"w" yaml:"w"`
}

// Pose is an opaque position/rotation snapshot. The core stores and returns
// poses verbatim and never interprets them.
type Pose struct {
	Position Vec3 `json:"position" yaml:"position"`
	Rotation Quat `json:"rotation" yaml:"rotation"`
}

// IdentityPose is the origin with no rotation.
var IdentityPose = Pose{Rotation: Quat{W: 1}}

// ObjectPose is the pose of a named auxiliary world object.
type ObjectPose struct {
	ID   string `json:"id" yaml:"id"`
	Pose Pose   `json:"pose" yaml:"pose"`
}
